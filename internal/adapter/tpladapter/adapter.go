package tpladapter

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	_ "embed"

	"github.com/dustin/go-humanize"
)

const (
	templateNameEntries = "ENTRIES"

	funcNameSize    = "size"
	funcNameEntries = "entries"
	funcNameHTML    = "html"
	funcNameSeq     = "seq"
)

var (
	//go:embed share.html
	defaultShareTemplate string

	//go:embed pack.html
	defaultPackTemplate string
)

// SharePage is what the share page shows for a published archive.
type SharePage struct {
	Name     string
	FileName string
	FileURL  string
	Size     int64
	Checksum string
	Entries  []string
}

// PackPage is the preview of a pack shown before downloading it.
type PackPage struct {
	ID          string
	Title       string
	Count       int
	Previews    int
	Description string // Trusted HTML rendered by the provider
	Types       map[string]int
	Link        string
	DownloadURL string
	PreviewURL  string // Prefix of the preview images, the position is appended
}

type tplAdapter struct {
	share *template.Template
	pack  *template.Template
}

// NewTplAdapter parses the given template files. An empty name selects the built-in page.
func NewTplAdapter(shareTemplateFileName, packTemplateFileName string) (*tplAdapter, error) {
	a := &tplAdapter{}

	share, err := a.parse(shareTemplateFileName, defaultShareTemplate)
	if err != nil {
		return nil, fmt.Errorf("share page: %w", err)
	}

	pack, err := a.parse(packTemplateFileName, defaultPackTemplate)
	if err != nil {
		return nil, fmt.Errorf("pack page: %w", err)
	}

	a.share = share
	a.pack = pack

	return a, nil
}

func (a *tplAdapter) parse(fileName, defaultSrc string) (*template.Template, error) {
	tpl := template.New("").Funcs(template.FuncMap{
		funcNameSize:    renderSize,
		funcNameEntries: a.renderEntries,
		funcNameHTML:    renderHTML,
		funcNameSeq:     seq,
	})

	src := defaultSrc
	if fileName != "" {
		data, err := os.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read template: %w", err)
		}

		src = string(data)
	}

	if _, err := tpl.Parse(src); err != nil {
		return nil, fmt.Errorf("cannot parse template: %w", err)
	}

	return tpl, nil
}

func (a *tplAdapter) Render(page *SharePage) (string, error) {
	return execute(a.share, page)
}

func (a *tplAdapter) RenderPack(page *PackPage) (string, error) {
	return execute(a.pack, page)
}

func execute(tpl *template.Template, data any) (string, error) {
	buf := bytes.Buffer{}
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("cannot execute template: %w", err)
	}

	return buf.String(), nil
}

func renderSize(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.Bytes(uint64(n))
}

func renderHTML(s string) template.HTML {
	return template.HTML(s)
}

// seq returns 0..n-1.
func seq(n int) []int {
	s := make([]int, max(n, 0))
	for i := range s {
		s[i] = i
	}

	return s
}

func (a *tplAdapter) renderEntries(entries []string) (template.HTML, error) {
	tpl := a.share.Lookup(templateNameEntries)
	if tpl == nil {
		return "", fmt.Errorf("template %s must be defined", templateNameEntries)
	}

	buf := bytes.Buffer{}
	if err := tpl.Execute(&buf, entries); err != nil {
		return "", fmt.Errorf("cannot execute template %s: %w", templateNameEntries, err)
	}

	return template.HTML(buf.String()), nil
}
