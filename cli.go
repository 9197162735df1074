package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/metcalfc/shelf/internal/app"
	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/config"
	"github.com/metcalfc/shelf/internal/ingest"
	"github.com/metcalfc/shelf/internal/kv"
	"github.com/metcalfc/shelf/internal/library"
	"github.com/metcalfc/shelf/internal/logger"
	"github.com/metcalfc/shelf/internal/notify"
	"github.com/metcalfc/shelf/internal/progress"
)

const noticeLimit = 50

// globalOptions are the persistent flags every command shares.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
	backend    string
	bundledDir string
}

// cli carries the process streams and the interactive helpers commands use.
type cli struct {
	out      io.Writer
	errOut   io.Writer
	prompt   prompter
	reporter func(io.Writer) progress.Reporter
	opts     globalOptions
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		out:      out,
		errOut:   errOut,
		prompt:   newTerminalPrompter(in, out),
		reporter: progress.NewReporter,
	}
}

// session is the application wired up for one command.
type session struct {
	cfg     *config.Config
	app     *app.App
	notices *notify.Log
	log     *slog.Logger
	closers []io.Closer
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "shelf",
		Short: "A novel library and reader",
		Long: `Shelf keeps a library of novels: the bundled titles plus the books you
write or import. Run it without a command to browse and read interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.app.Ingest(cmd.Context()); err != nil {
				s.log.Warn("bundled books unavailable", "error", err)
			}
			return runInteractive(cmd.Context(), s)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.opts.configPath, "config", config.DefaultPath(), "config file path")
	pf.StringVar(&c.opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&c.opts.logFile, "log-file", "", `log file, "-" for stderr`)
	pf.StringVar(&c.opts.backend, "backend", "", "storage backend: memory, file, sqlite or redis")
	pf.StringVar(&c.opts.bundledDir, "bundled", "", "directory of bundled books")

	root.AddCommand(
		newListCmd(c),
		newAddCmd(c),
		newEditCmd(c),
		newDeleteCmd(c),
		newBookmarksCmd(c),
		newScanCmd(c),
		newSettingsCmd(c),
		newConfigCmd(c),
		newVersionCmd(c),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.opts.configPath)
	if err != nil {
		return nil, err
	}
	if c.opts.logLevel != "" {
		cfg.Log.Level = c.opts.logLevel
	}
	if c.opts.logFile != "" {
		cfg.Log.File = c.opts.logFile
	}
	if c.opts.backend != "" {
		cfg.Storage.Backend = kv.Backend(c.opts.backend)
	}
	if c.opts.bundledDir != "" {
		cfg.BundledDir = c.opts.bundledDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// open wires config, logging, storage and the App, and loads persisted
// state. withBundled also ingests the bundled directory.
func (c *cli) open(ctx context.Context, withBundled bool) (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	w, err := c.logWriter(s, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	s.log = logger.Init(cfg.Log.Level, cfg.Log.Format, w)

	store, err := kv.Open(ctx, cfg.StoreOptions())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	s.closers = append(s.closers, store)
	s.notices = notify.NewLog(noticeLimit, s.log)
	if c, ok := store.(interface{ Corrupt() error }); ok && c.Corrupt() != nil {
		s.log.Warn("unreadable state set aside, starting empty", "error", c.Corrupt())
		s.notices.Notify(notify.Warning, "Saved data was unreadable and has been reset")
	}

	bundled := cfg.BundledDir
	if _, err := os.Stat(bundled); err != nil {
		s.log.Debug("no bundled directory", "dir", bundled, "error", err)
		bundled = ""
	}

	s.app = app.New(app.Options{
		Store:       store,
		Notifier:    s.notices,
		Logger:      s.log,
		BundledDir:  bundled,
		Concurrency: cfg.Concurrency,
	})
	s.app.Load(ctx)
	if withBundled {
		if err := s.app.Ingest(ctx); err != nil {
			if ctx.Err() != nil {
				s.Close()
				return nil, err
			}
			s.log.Warn("bundled books unavailable", "error", err)
		}
	}
	return s, nil
}

func (c *cli) logWriter(s *session, path string) (io.Writer, error) {
	switch path {
	case "":
		return io.Discard, nil
	case "-":
		return c.errOut, nil
	}
	f, err := logger.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	s.closers = append(s.closers, f)
	return f, nil
}

// report prints pending notices. Errors are left to the returned error.
func (c *cli) report(s *session) {
	for _, n := range s.notices.Drain() {
		switch n.Level {
		case notify.Info:
			fmt.Fprintln(c.out, n.Message)
		case notify.Warning:
			fmt.Fprintf(c.errOut, "Warning: %s\n", n.Message)
		}
	}
}

func newListCmd(c *cli) *cobra.Command {
	var (
		search   string
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the books in the library",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)

			s.app.SetSearch(search)
			s.app.SetCategory(category)
			page := s.app.Library()

			if asJSON {
				return writeJSON(c.out, summarize(page.Books))
			}
			switch page.Empty {
			case library.NoBooks:
				fmt.Fprintln(c.out, "The library is empty.")
				return nil
			case library.NoMatches:
				fmt.Fprintln(c.out, "No books match.")
				return nil
			}
			fmt.Fprintln(c.out, bookTable(page.Books))
			fmt.Fprintf(c.out, "Categories: %s\n", strings.Join(page.Categories, ", "))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&search, "search", "s", "", "only books whose title or author contains this")
	f.StringVarP(&category, "category", "c", library.All, "only books in this category")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

type bookSummary struct {
	ID       book.ID `json:"id"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Category string  `json:"category"`
	Chapters int     `json:"chapters"`
	BuiltIn  bool    `json:"isBuiltIn"`
}

func summarize(books []book.Book) []bookSummary {
	out := make([]bookSummary, len(books))
	for i, b := range books {
		out[i] = bookSummary{
			ID:       b.ID,
			Title:    b.Title,
			Author:   b.Author,
			Category: b.Category,
			Chapters: len(b.Chapters),
			BuiltIn:  b.BuiltIn,
		}
	}
	return out
}

func bookTable(books []book.Book) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "AUTHOR", "CATEGORY", "CHAPTERS", "")
	for _, b := range books {
		kind := ""
		if b.BuiltIn {
			kind = "built-in"
		}
		t.Row(string(b.ID), b.Title, b.Author, b.Category, strconv.Itoa(len(b.Chapters)), kind)
	}
	return t.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// bookFlags override form fields from the command line.
type bookFlags struct {
	title       string
	author      string
	category    string
	description string
	cover       string
	password    string
}

func (b *bookFlags) register(f *pflag.FlagSet) {
	f.StringVar(&b.title, "title", "", "book title")
	f.StringVar(&b.author, "author", "", "book author")
	f.StringVar(&b.category, "category", "", "book category")
	f.StringVar(&b.description, "description", "", "book description")
	f.StringVar(&b.cover, "cover", "", "cover image URL or path")
	f.StringVarP(&b.password, "password", "p", "", "edit password (prompted when omitted)")
}

// apply copies the flags that were set onto form.
func (b *bookFlags) apply(form *app.Form, f *pflag.FlagSet) {
	set := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}
	set("title", &form.Title, b.title)
	set("author", &form.Author, b.author)
	set("category", &form.Category, b.category)
	set("description", &form.Description, b.description)
	set("cover", &form.Cover, b.cover)
}

// formFromFile parses a supported file into a form. The defaults ingestion
// fills in for bundled titles are cleared.
func formFromFile(path string) (app.Form, error) {
	parsed, err := ingest.Parse(path)
	if err != nil {
		return app.Form{}, fmt.Errorf("reading %s: %w", path, err)
	}
	form := app.FormFrom(parsed)
	if form.Category == ingest.DefaultCategory {
		form.Category = ""
	}
	return form, nil
}

func newAddCmd(c *cli) *cobra.Command {
	var flags bookFlags
	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Add a book from an HTML, EPUB, Markdown or text file",
		Long: fmt.Sprintf(`Add a book to the library from a file.

Supported formats: %s`, strings.Join(ingest.SupportedFormats(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := formFromFile(args[0])
			if err != nil {
				return err
			}
			flags.apply(&form, cmd.Flags())
			form.Password = flags.password
			if book.IsBlank(form.Password) {
				if form.Password, err = c.prompt.Password("Edit password"); err != nil {
					return err
				}
			}

			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)

			b, err := s.app.CreateBook(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s  %s (%d chapters)\n", b.ID, b.Title, len(b.Chapters))
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newEditCmd(c *cli) *cobra.Command {
	var flags bookFlags
	cmd := &cobra.Command{
		Use:   "edit ID [FILE]",
		Short: "Edit a book you added",
		Long: `Edit the fields of a book you added. With FILE, its chapters replace the
book's chapters. Built-in books cannot be edited.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := book.ID(args[0])

			s, err := c.open(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)

			b, ok := s.app.Find(id)
			if !ok {
				return fmt.Errorf("%s: %w", id, app.ErrNotFound)
			}
			if b.BuiltIn {
				return fmt.Errorf("%s is a built-in book and cannot be edited", b.Title)
			}

			password := flags.password
			if password == "" {
				if password, err = c.prompt.Password("Password for " + b.Title); err != nil {
					return err
				}
			}
			b, err = s.app.Authorize(id, password)
			if err != nil {
				return err
			}

			form := app.FormFrom(b)
			if len(args) == 2 {
				parsed, err := formFromFile(args[1])
				if err != nil {
					return err
				}
				form.Chapters = parsed.Chapters
			}
			flags.apply(&form, cmd.Flags())

			b, err = s.app.EditBook(ctx, id, password, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s  %s (%d chapters)\n", b.ID, b.Title, len(b.Chapters))
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a book you added, with its bookmarks and progress",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := book.ID(args[0])
			s, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)

			b, ok := s.app.Find(id)
			if !ok {
				return fmt.Errorf("%s: %w", id, app.ErrNotFound)
			}
			if !yes && !b.BuiltIn {
				confirmed, err := c.prompt.Confirm(fmt.Sprintf("Delete %q? This cannot be undone", b.Title))
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(c.out, "Cancelled.")
					return nil
				}
			}
			return s.app.DeleteBook(cmd.Context(), id)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newBookmarksCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "bookmarks ID",
		Short: "List the bookmarks of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := book.ID(args[0])
			s, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)

			if _, ok := s.app.Find(id); !ok {
				return fmt.Errorf("%s: %w", id, app.ErrNotFound)
			}
			marks := s.app.BookmarksFor(cmd.Context(), id)
			if len(marks) == 0 {
				fmt.Fprintln(c.out, "No bookmarks.")
				return nil
			}
			for _, bm := range marks {
				fmt.Fprintf(c.out, "%s  chapter %d  %s  %d%%\n",
					bookmarkTime(bm), bm.ChapterIndex+1, bm.ChapterTitle, bm.Progress)
			}
			return nil
		},
	}
}

// bookmarkTime formats a bookmark's timestamp in local time, or returns it
// unchanged when it does not parse.
func bookmarkTime(bm book.Bookmark) string {
	t, err := time.Parse(time.RFC3339Nano, bm.Timestamp)
	if err != nil {
		return bm.Timestamp
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newScanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [DIR]",
		Short: "Check which files in the bundled directory can be loaded",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.BundledDir
			if len(args) == 1 {
				dir = args[0]
			}

			rep := c.reporter(c.errOut)
			var (
				mu      sync.Mutex
				started bool
			)
			l := &ingest.Loader{
				Concurrency: cfg.Concurrency,
				Logger:      logger.Default(),
				Progress: func(done, total int, r ingest.Result) {
					mu.Lock()
					defer mu.Unlock()
					if !started {
						rep.Start(total)
						started = true
					}
					rep.Update(done, r.Path)
				},
			}
			results, err := l.Load(cmd.Context(), dir)
			if started {
				rep.Finish()
			}
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(c.out, "FAIL  %s: %v\n", r.Path, r.Err)
					continue
				}
				fmt.Fprintf(c.out, "ok    %s  %s (%d chapters)\n", r.Path, r.Book.Title, len(r.Book.Chapters))
			}
			fmt.Fprintf(c.out, "%d loaded, %d failed\n", len(results)-failed, failed)
			return nil
		},
	}
}

func newSettingsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show reader settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)
			c.printSettings(s.app)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a reader setting",
		Long: fmt.Sprintf(`Change a reader setting. Keys: %s, %s, %s, %s.
Numbers are clamped into range.`, app.SettingFontSize, app.SettingLineHeight, app.SettingFontFamily, app.SettingMaxWidth),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)
			if _, err := s.app.UpdateSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			c.printSettings(s.app)
			return nil
		},
	}

	theme := &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Switch the colour theme",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"light", "dark"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)
			if len(args) == 0 || (args[0] == "dark") != s.app.Dark() {
				s.app.ToggleTheme(cmd.Context())
			}
			fmt.Fprintf(c.out, "theme: %s\n", themeName(s.app.Dark()))
			return nil
		},
	}

	view := &cobra.Command{
		Use:       "view [grid|list]",
		Short:     "Switch the library layout",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(library.Grid), string(library.List)},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()
			defer c.report(s)
			mode := s.app.Library().Mode
			if len(args) == 0 || library.Mode(args[0]) != mode {
				mode = s.app.ToggleViewMode(cmd.Context())
			}
			fmt.Fprintf(c.out, "view: %s\n", mode)
			return nil
		},
	}

	cmd.AddCommand(set, theme, view)
	return cmd
}

func (c *cli) printSettings(a *app.App) {
	st := a.Settings()
	fmt.Fprintf(c.out, "%-11s %g\n", app.SettingFontSize, st.FontSize)
	fmt.Fprintf(c.out, "%-11s %g\n", app.SettingLineHeight, st.LineHeight)
	fmt.Fprintf(c.out, "%-11s %s\n", app.SettingFontFamily, st.FontFamily)
	fmt.Fprintf(c.out, "%-11s %g\n", app.SettingMaxWidth, st.MaxWidth)
	fmt.Fprintf(c.out, "%-11s %s\n", "theme", themeName(a.Dark()))
	fmt.Fprintf(c.out, "%-11s %s\n", "view", a.Library().Mode)
}

func themeName(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(c.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.opts.configPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.out, "shelf %s (commit: %s, built: %s, %s)\n", version, commit, date, frontEnd)
		},
	}
}
