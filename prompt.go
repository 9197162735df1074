package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

// prompter asks the user for input during a command.
type prompter interface {
	Password(label string) (string, error)
	Confirm(label string) (bool, error)
}

// terminalPrompter prompts on the terminal with promptui.
type terminalPrompter struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func newTerminalPrompter(in io.Reader, out io.Writer) terminalPrompter {
	return terminalPrompter{in: io.NopCloser(in), out: nopWriteCloser{out}}
}

func (p terminalPrompter) Password(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("password is required")
			}
			return nil
		},
		Stdin:  p.in,
		Stdout: p.out,
	}
	pw, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return pw, nil
}

// Confirm reports false when the user answers no or aborts.
func (p terminalPrompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.in,
		Stdout:    p.out,
	}
	_, err := prompt.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt):
		return false, nil
	default:
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
