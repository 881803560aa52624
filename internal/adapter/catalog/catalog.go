// Package catalog serves sticker packs from a directory tree.
//
// Every pack is a folder named after its identifier. The folder holds the
// sticker files and an optional description file (pack.md by default) whose
// YAML frontmatter sets the title, ordering and previews:
//
//	---
//	title: Cute Cat Stickers
//	enabled: true
//	items: [hello.webp, bye.webp]
//	previews: [hello.webp]
//	---
//	# Cute cats
//	Drawn by ...
//
// The markdown body becomes the pack description.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/mdadapter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/config"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	Scheme = "catalog"

	maxItems              = 120
	maxPreviews           = 4
	mimeTypeUnknown       = "application/octet-stream"
	mimeTypeCheckPartSize = 512
)

type Frontmatter struct {
	Title    string   `yaml:"title"`
	Enabled  *bool    `yaml:"enabled"`
	Items    []string `yaml:"items"`
	Previews []string `yaml:"previews"`
	Author   string   `yaml:"author"`
}

type file struct {
	name     string
	mimeType string
}

type catalogAdapter struct {
	fs        afero.Fs
	cfg       *config.SourceConfig
	skipFiles map[string]struct{}
	md        goldmark.Markdown

	log *slog.Logger
}

func NewCatalogAdapter(cfg *config.SourceConfig, log *slog.Logger) *catalogAdapter {
	return NewCatalogAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewCatalogAdapterWithFS(fs afero.Fs, cfg *config.SourceConfig, log *slog.Logger) *catalogAdapter {
	skipFilesMap := make(map[string]struct{})
	skipFilesMap[cfg.DescFileName] = struct{}{}
	for _, file := range cfg.SkipFiles {
		skipFilesMap[file] = struct{}{}
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
			mdadapter.NewStickersExtension(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &catalogAdapter{
		fs:        fs,
		cfg:       cfg,
		skipFiles: skipFilesMap,
		md:        md,
		log:       log.With(slog.String("item", "CatalogAdapter")),
	}
}

func (a *catalogAdapter) FetchMetadata(ctx context.Context, id entity.PackIdentifier) (*entity.PackMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrProvider, err)
	}

	name := id.String()
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, common.ErrPackNotFound
	}

	folderPath := filepath.Join(a.cfg.CatalogDir, name)

	stat, err := a.fs.Stat(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrPackNotFound
		}

		return nil, fmt.Errorf("%w: cannot stat pack folder: %w", common.ErrProvider, err)
	}

	if !stat.IsDir() {
		return nil, common.ErrPackNotFound
	}

	files, err := a.readFiles(folderPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read pack folder: %w", common.ErrProvider, err)
	}

	meta := &entity.PackMetadata{
		Identifier: id,
		Title:      name,
	}

	fm, description, mentioned, err := a.parseDescription(filepath.Join(folderPath, a.cfg.DescFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse pack description: %w", common.ErrProvider, err)
	}

	previews := mentioned
	if fm != nil {
		if fm.Enabled != nil && !*fm.Enabled {
			a.log.Info("Pack is disabled", slog.String("id", name))

			return nil, common.ErrPackNotFound
		}

		if fm.Title != "" {
			meta.Title = fm.Title
		}

		files = a.orderFiles(files, fm.Items)
		if len(fm.Previews) > 0 {
			previews = fm.Previews
		}
	}
	meta.Description = description

	for i, f := range files {
		meta.Items = append(meta.Items, entity.ItemReference{
			Index:    i,
			Locator:  Locator(id, f.name),
			MIMEType: f.mimeType,
		})
	}
	meta.ItemCount = len(meta.Items)

	if len(previews) > 0 {
		for _, p := range previews {
			if strings.Contains(p, "://") {
				meta.PreviewRefs = append(meta.PreviewRefs, p)
			} else {
				meta.PreviewRefs = append(meta.PreviewRefs, Locator(id, p))
			}
		}
	} else {
		for _, item := range meta.Items[:min(maxPreviews, len(meta.Items))] {
			meta.PreviewRefs = append(meta.PreviewRefs, item.Locator)
		}
	}

	return meta, nil
}

// FetchItem reads a file addressed by a catalog locator.
func (a *catalogAdapter) FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrFetch, err)
	}

	filePath, err := a.resolve(ref.Locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrFetch, err)
	}

	data, err := afero.ReadFile(a.fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %w", common.ErrFetch, filePath, err)
	}

	return data, nil
}

// Locator builds the catalog locator of one file of a pack.
func Locator(id entity.PackIdentifier, fileName string) string {
	u := url.URL{Scheme: Scheme, Host: id.String(), Path: "/" + fileName}

	return u.String()
}

func (a *catalogAdapter) resolve(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnsupportedLocator, err)
	}

	if u.Scheme != Scheme || u.Host == "" {
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedLocator, locator)
	}

	name := strings.TrimPrefix(u.Path, "/")
	if name == "" || strings.Contains(name, "..") || strings.Contains(u.Host, "..") {
		return "", fmt.Errorf("%w: invalid path %s", common.ErrUnsupportedLocator, locator)
	}

	return filepath.Join(a.cfg.CatalogDir, u.Host, filepath.FromSlash(name)), nil
}

// parseDescription renders the pack description. It also returns the stickers the text mentions.
func (a *catalogAdapter) parseDescription(fileName string) (*Frontmatter, string, []string, error) {
	content, err := afero.ReadFile(a.fs, fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil, nil
		}

		return nil, "", nil, fmt.Errorf("cannot read description file: %w", err)
	}

	var buf bytes.Buffer

	pc := parser.NewContext()
	if err := a.md.Convert(content, &buf, parser.WithContext(pc)); err != nil {
		return nil, "", nil, fmt.Errorf("cannot convert markdown: %w", err)
	}

	mentioned := mdadapter.Stickers(pc)

	data := frontmatter.Get(pc)
	if data == nil {
		return nil, buf.String(), mentioned, nil
	}

	var fm Frontmatter
	if err := data.Decode(&fm); err != nil {
		return nil, "", nil, fmt.Errorf("cannot decode frontmatter: %w", err)
	}

	return &fm, buf.String(), mentioned, nil
}

// orderFiles puts the files named in order first, in that order, followed by the rest.
func (a *catalogAdapter) orderFiles(files []file, order []string) []file {
	if len(order) == 0 {
		return files
	}

	byName := make(map[string]int, len(files))
	for i, f := range files {
		byName[f.name] = i
	}

	used := make(map[string]struct{}, len(order))
	ordered := make([]file, 0, len(files))
	for _, name := range order {
		idx, exists := byName[name]
		if !exists {
			a.log.Warn("Listed item is missing", slog.String("name", name))

			continue
		}

		if _, dup := used[name]; dup {
			continue
		}

		used[name] = struct{}{}
		ordered = append(ordered, files[idx])
	}

	for _, f := range files {
		if _, exists := used[f.name]; !exists {
			ordered = append(ordered, f)
		}
	}

	return ordered
}

func (a *catalogAdapter) readFiles(folderPath string) ([]file, error) {
	entries, err := afero.ReadDir(a.fs, folderPath)
	if err != nil {
		return nil, err
	}

	var files []file
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if _, exists := a.skipFiles[entry.Name()]; exists {
			continue
		}

		filePath := filepath.Join(folderPath, entry.Name())

		mimeType, err := a.getMimeType(filePath)
		if err != nil {
			a.log.Error("Cannot get file mimeType", slog.String("path", filePath), slog.Any("error", err))
		}

		files = append(files, file{name: entry.Name(), mimeType: mimeType})

		if len(files) >= maxItems {
			break
		}
	}

	return files, nil
}

func (a *catalogAdapter) getMimeType(filePath string) (string, error) {
	if ext := filepath.Ext(filePath); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType, nil
		}
	}

	f, err := a.fs.Open(filePath)
	if err != nil {
		return mimeTypeUnknown, err
	}
	defer f.Close()

	buffer := make([]byte, mimeTypeCheckPartSize)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return mimeTypeUnknown, err
	}

	return http.DetectContentType(buffer[:n]), nil
}
