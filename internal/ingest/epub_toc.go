package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// buildTOCHrefMap parses the NCX and returns chapter titles keyed by href.
// Each title is also stored under the href without its fragment and under
// the bare file name, so spine items match regardless of directory layout.
func buildTOCHrefMap(filename string, rf *epub.Rootfile) map[string]string {
	result := make(map[string]string)

	data, err := findAndReadNCX(filename, rf)
	if err != nil {
		return result
	}
	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		return result
	}
	collectNavTitles(toc.NavMap.NavPoints, result)
	return result
}

func collectNavTitles(points []navPoint, into map[string]string) {
	put := func(k, v string) {
		if _, ok := into[k]; !ok {
			into[k] = v
		}
	}
	for _, np := range points {
		href := np.Content.Src
		title := strings.TrimSpace(np.Label.Text)

		put(href, title)
		base := href
		if i := strings.Index(base, "#"); i != -1 {
			base = base[:i]
			put(base, title)
		}
		put(path.Base(base), title)

		collectNavTitles(np.Children, into)
	}
}

func findAndReadNCX(filename string, rf *epub.Rootfile) ([]byte, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var ncxPath string
	for _, item := range rf.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no NCX file found in EPUB")
	}

	for _, f := range zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) || path.Base(f.Name) == path.Base(ncxPath) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("NCX file %s not found in archive", ncxPath)
}
