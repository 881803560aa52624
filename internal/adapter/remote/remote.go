// Package remote reads pack metadata from an HTTP pack index.
//
// The index answers GET {base}/packs/{id} with
//
//	{"name": "...", "title": "...", "count": 24,
//	 "thumbnails": ["https://..."], "stickers": [{"url": "https://..."}]}
//
// and 404 for unknown packs.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/config"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	packsPath        = "packs"
	maxResponseBytes = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type packResponse struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Count      int      `json:"count"`
	Thumbnails []string `json:"thumbnails"`
	Stickers   []struct {
		URL      string `json:"url"`
		MIMEType string `json:"mime_type"`
	} `json:"stickers"`
}

type remoteAdapter struct {
	baseURL *url.URL
	timeout time.Duration
	client  HTTPDoer
	log     *slog.Logger
}

func NewRemoteAdapter(cfg *config.SourceConfig, client HTTPDoer, log *slog.Logger) (*remoteAdapter, error) {
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("cannot parse source url: %w", err)
	}

	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported source url scheme: %q", baseURL.Scheme)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &remoteAdapter{
		baseURL: baseURL,
		timeout: cfg.Timeout,
		client:  client,
		log:     log.With(slog.String("item", "RemoteAdapter")),
	}, nil
}

func (a *remoteAdapter) FetchMetadata(ctx context.Context, id entity.PackIdentifier) (*entity.PackMetadata, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	packURL := a.baseURL.JoinPath(packsPath, id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot build request: %w", common.ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot get pack %s: %w", common.ErrProvider, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

		return nil, common.ErrPackNotFound
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%w: pack index returned %d", common.ErrProvider, resp.StatusCode)
	}

	var pr packResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: cannot decode pack %s: %w", common.ErrProvider, id, err)
	}

	return a.toMetadata(id, packURL, &pr)
}

func (a *remoteAdapter) toMetadata(id entity.PackIdentifier, packURL *url.URL, pr *packResponse) (*entity.PackMetadata, error) {
	if pr.Count < 0 {
		return nil, fmt.Errorf("%w: negative sticker count %d", common.ErrProvider, pr.Count)
	}

	meta := &entity.PackMetadata{
		Identifier: id,
		Title:      pr.Title,
		ItemCount:  pr.Count,
	}

	if meta.Title == "" {
		meta.Title = pr.Name
	}

	for _, thumb := range pr.Thumbnails {
		meta.PreviewRefs = append(meta.PreviewRefs, resolve(packURL, thumb))
	}

	for i, s := range pr.Stickers {
		meta.Items = append(meta.Items, entity.ItemReference{
			Index:    i,
			Locator:  resolve(packURL, s.URL),
			MIMEType: s.MIMEType,
		})
	}

	if meta.ItemCount == 0 {
		meta.ItemCount = len(meta.Items)
	}

	if meta.ItemCount > len(meta.Items) && len(meta.PreviewRefs) == 0 {
		a.log.Warn("Pack lists fewer stickers than its count",
			slog.String("id", id.String()),
			slog.Int("count", meta.ItemCount),
			slog.Int("stickers", len(meta.Items)),
		)
	}

	return meta, nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return base.ResolveReference(u).String()
}
