package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/archive"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/config"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

func encodePNG(t *testing.T, c color.Color) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}

	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func newTestApp(t *testing.T, extra string) (*App, string) {
	t.Helper()

	dir := t.TempDir()
	packDir := filepath.Join(dir, "packs", "Cats")
	require.NoError(t, os.MkdirAll(packDir, 0o755))

	for i, c := range []color.Color{color.White, color.Black, color.NRGBA{R: 255, A: 255}} {
		name := filepath.Join(packDir, fmt.Sprintf("%c.png", 'a'+i))
		require.NoError(t, os.WriteFile(name, encodePNG(t, c), 0o644))
	}

	cfg := fmt.Sprintf(`log_level: error
source:
  kind: catalog
  catalog_dir: %s
sink:
  out_dir: %s
%s`, filepath.Join(dir, "packs"), filepath.Join(dir, "out"), extra)

	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return New(cfgPath), dir
}

func TestFetch(t *testing.T) {
	a, dir := newTestApp(t, "")

	var last entity.Progress
	opts := entity.DownloadOptions{OutputFormat: entity.FormatPNG}
	res, err := a.Fetch(context.Background(), "https://t.me/addstickers/Cats", opts, "", func(p entity.Progress) {
		last = p
	})
	require.NoError(t, err)
	require.True(t, res.Succeeded(), "reason: %v", res.Reason)
	require.Equal(t, 3, res.ItemsSucceeded)
	require.Equal(t, 1.0, last.Fraction)

	path := filepath.Join(dir, "out", "Cats.zip")
	require.Equal(t, path, res.ArtifactLocation)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	entries, err := archive.Extract(data)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Contains(t, entries, "sticker_1.png")
	require.Contains(t, entries, "sticker_3.png")
}

func TestFetchOutDir(t *testing.T) {
	a, _ := newTestApp(t, "")
	outDir := t.TempDir()

	opts := entity.DownloadOptions{OutputFormat: entity.FormatPNG, CustomArchiveName: "mine"}
	res, err := a.Fetch(context.Background(), "https://t.me/addstickers/Cats", opts, outDir, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.FileExists(t, filepath.Join(outDir, "mine.zip"))
}

func TestFetchFailures(t *testing.T) {
	a, _ := newTestApp(t, "")

	res, err := a.Fetch(context.Background(), "https://t.me/addstickers/Dogs", defaultOptions(t, a), "", nil)
	require.NoError(t, err)
	require.ErrorIs(t, res.Reason, common.ErrPackNotFound)

	res, err = a.Fetch(context.Background(), "https://example.com/addstickers/Cats", defaultOptions(t, a), "", nil)
	require.NoError(t, err)
	require.ErrorIs(t, res.Reason, common.ErrInvalidLink)
}

func TestFetchBadConfig(t *testing.T) {
	a, _ := newTestApp(t, "pipeline:\n  workers: 0\n")

	_, err := a.Fetch(context.Background(), "https://t.me/addstickers/Cats", entity.DefaultDownloadOptions(), "", nil)
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	a, dir := newTestApp(t, "")

	desc := "---\ntitle: Cute Cats\n---\nMy favourite is {{ sticker: b.png }}.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packs", "Cats", "pack.md"), []byte(desc), 0o644))

	p, err := a.Lookup(context.Background(), "https://t.me/addstickers/Cats")
	require.NoError(t, err)
	require.Equal(t, entity.PackIdentifier("Cats"), p.Identifier)
	require.Equal(t, "Cute Cats", p.Title)
	require.Equal(t, 3, p.ItemCount)
	require.Equal(t, 1, p.Previews)
	require.Equal(t, map[string]int{"image/png": 3}, p.Types)
	require.Contains(t, p.Description, `<span class="sticker">b.png</span>`)

	_, err = a.Lookup(context.Background(), "https://t.me/addstickers/Dogs")
	require.ErrorIs(t, err, common.ErrPackNotFound)

	_, err = a.Lookup(context.Background(), "not-a-link")
	require.ErrorIs(t, err, common.ErrInvalidLink)
}

func defaultOptions(t *testing.T, a *App) entity.DownloadOptions {
	t.Helper()

	require.NoError(t, a.Init())

	return a.Config().DownloadOptions()
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError} {
		log, err := newLogger(level)
		require.NoError(t, err)
		require.NotNil(t, log)
	}

	_, err := newLogger("verbose")
	require.Error(t, err)
}

func TestNewSource(t *testing.T) {
	a, _ := newTestApp(t, "")
	require.NoError(t, a.Init())

	provider, mux, err := a.newSource()
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NotNil(t, mux)

	a.cfg.Source.Kind = config.SourceKindRemote
	a.cfg.Source.URL = "http://127.0.0.1:1/api"
	provider, _, err = a.newSource()
	require.NoError(t, err)
	require.NotNil(t, provider)

	a.cfg.Source.Kind = "ftp"
	_, _, err = a.newSource()
	require.Error(t, err)
}
