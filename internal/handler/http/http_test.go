package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/tpladapter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/service/pipeline"
)

const (
	siteURL   = "http://example.com"
	testToken = "0b7c2d9e-3f1a-4c5b-8d6e-7f8091a2b3c4"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePipeline struct {
	result   *entity.PipelineResult
	progress []entity.Progress
	link     string
	opts     entity.DownloadOptions
}

func (p *fakePipeline) Run(ctx context.Context, link string, opts entity.DownloadOptions, onProgress entity.ProgressFunc) *entity.PipelineResult {
	p.link = link
	p.opts = opts

	if onProgress != nil {
		for _, pr := range p.progress {
			onProgress(pr)
		}
	}

	return p.result
}

func (p *fakePipeline) Stream(ctx context.Context, link string, opts entity.DownloadOptions) <-chan pipeline.Event {
	ch := make(chan pipeline.Event)

	go func() {
		defer close(ch)

		res := p.Run(ctx, link, opts, func(pr entity.Progress) {
			ch <- pipeline.Event{Progress: &pr}
		})
		ch <- pipeline.Event{Result: res}
	}()

	return ch
}

type fakeCounter struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func (c *fakeCounter) Record(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters[id]++

	return c.counters[id], nil
}

func (c *fakeCounter) GetPackCounter(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, c.err
	}

	return c.counters[id], nil
}

type fakeLinks struct {
	artifacts map[string]*entity.ArchiveArtifact
}

func (l *fakeLinks) Get(ctx context.Context, token string) (*entity.ArchiveArtifact, error) {
	a, ok := l.artifacts[token]
	if !ok {
		return nil, common.ErrLinkNotFound
	}

	return a, nil
}

func (l *fakeLinks) Take(ctx context.Context, token string) (*entity.ArchiveArtifact, error) {
	a, err := l.Get(ctx, token)
	if err == nil {
		delete(l.artifacts, token)
	}

	return a, err
}

func (l *fakeLinks) Release(ctx context.Context, token string) error {
	if _, ok := l.artifacts[token]; !ok {
		return common.ErrLinkNotFound
	}
	delete(l.artifacts, token)

	return nil
}

func newMux(t *testing.T, p *fakePipeline, c *fakeCounter, l *fakeLinks) *http.ServeMux {
	t.Helper()

	return newMuxWithPreview(t, p, c, l, &fakePreview{})
}

func newMuxWithPreview(t *testing.T, p *fakePipeline, c *fakeCounter, l *fakeLinks, pv *fakePreview) *http.ServeMux {
	t.Helper()

	tpl, err := tpladapter.NewTplAdapter("", "")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("POST /download/{$}", NewDownloadHandler(siteURL, entity.DefaultDownloadOptions(), p, c, testLog))
	mux.Handle("GET /share/{token}/{$}", NewShareHandler(l, tpl, siteURL, testLog))
	mux.Handle("GET /file/{token}/{$}", NewFileHandler(l, testLog))
	mux.Handle("DELETE /file/{token}/{$}", NewRevokeHandler(l, testLog))
	mux.Handle("GET /stat/{id}/{$}", NewCounterHandler(c, testLog))
	mux.Handle("GET /pack/{id}/{$}", NewPackHandler(siteURL, pv, tpl, testLog))
	mux.Handle("GET /pack/{id}/preview/{n}/{$}", NewPreviewImageHandler(pv, testLog))

	return mux
}

func succeeded() *entity.PipelineResult {
	return &entity.PipelineResult{
		RunID:            "run",
		Identifier:       "Cats",
		State:            entity.StateSucceeded,
		ArtifactLocation: siteURL + "/file/" + testToken + "/",
		Token:            testToken,
		ArchiveName:      "Cats",
		Size:             10,
		ItemsSucceeded:   3,
		ItemsFailed:      1,
	}
}

func failed(reason error) *entity.PipelineResult {
	return &entity.PipelineResult{RunID: "run", State: entity.StateFailed, Reason: reason}
}

func TestDownloadHandlerStatus(t *testing.T) {
	testCases := []struct {
		name   string
		result *entity.PipelineResult
		status int
	}{
		{name: "ok", result: succeeded(), status: http.StatusOK},
		{name: "invalid link", result: failed(common.ErrInvalidLink), status: http.StatusBadRequest},
		{name: "not found", result: failed(common.ErrPackNotFound), status: http.StatusNotFound},
		{name: "provider", result: failed(fmt.Errorf("%w: timeout", common.ErrProvider)), status: http.StatusBadGateway},
		{name: "all failed", result: failed(common.ErrAllItemsFailed), status: http.StatusUnprocessableEntity},
		{name: "delivery", result: failed(common.ErrDelivery), status: http.StatusInternalServerError},
		{name: "cancelled", result: failed(common.ErrCancelled), status: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &fakeCounter{counters: make(map[string]int64)}
			mux := newMux(t, &fakePipeline{result: tc.result}, c, &fakeLinks{})

			req := httptest.NewRequest(http.MethodPost, "/download/", strings.NewReader(`{"link":"https://t.me/addstickers/Cats"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, contentTypeJSON, rec.Header().Get("Content-Type"))

			resp := &downloadResponse{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(resp))
			require.Equal(t, tc.result.State.String(), resp.State)

			if tc.result.Succeeded() {
				require.Equal(t, siteURL+"/share/"+testToken+"/", resp.ShareURL)
				require.Equal(t, 3, resp.Succeeded)
				require.Equal(t, 1, resp.Failed)
				require.EqualValues(t, 1, c.counters["Cats"])
			} else {
				require.NotEmpty(t, resp.Reason)
				require.Empty(t, c.counters)
			}
		})
	}
}

func TestDownloadHandlerOptions(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
		want        entity.DownloadOptions
	}{
		{
			name:        "json defaults",
			contentType: "application/json",
			body:        `{"link":"https://t.me/addstickers/Cats"}`,
			want:        entity.DownloadOptions{OutputFormat: entity.FormatWebP},
		},
		{
			name:        "json options",
			contentType: "application/json; charset=utf-8",
			body:        `{"link":"https://t.me/addstickers/Cats","format":"GIF","retain_original":true,"name":"My cats"}`,
			want:        entity.DownloadOptions{OutputFormat: entity.FormatGIF, RetainOriginal: true, CustomArchiveName: "My cats"},
		},
		{
			name:        "form",
			contentType: "application/x-www-form-urlencoded",
			body: url.Values{
				"link":            {"https://t.me/addstickers/Cats"},
				"format":          {"png"},
				"retain_original": {"1"},
			}.Encode(),
			want: entity.DownloadOptions{OutputFormat: entity.FormatPNG, RetainOriginal: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{result: succeeded()}
			mux := newMux(t, p, &fakeCounter{counters: make(map[string]int64)}, &fakeLinks{})

			req := httptest.NewRequest(http.MethodPost, "/download/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, "https://t.me/addstickers/Cats", p.link)
			require.Equal(t, tc.want, p.opts)
		})
	}
}

func TestDownloadHandlerBadRequest(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "broken json", contentType: "application/json", body: `{"link":`},
		{name: "unknown format", contentType: "application/json", body: `{"link":"https://t.me/addstickers/Cats","format":"bmp"}`},
		{name: "jpeg output", contentType: "application/json", body: `{"link":"https://t.me/addstickers/Cats","format":"jpeg"}`},
		{name: "bad bool", contentType: "application/x-www-form-urlencoded", body: "link=x&retain_original=maybe"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{result: succeeded()}
			mux := newMux(t, p, &fakeCounter{counters: make(map[string]int64)}, &fakeLinks{})

			req := httptest.NewRequest(http.MethodPost, "/download/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, p.link)
		})
	}
}

func testLinks() *fakeLinks {
	return &fakeLinks{artifacts: map[string]*entity.ArchiveArtifact{
		testToken: {
			Name:     "Cats",
			Data:     []byte("zipdata"),
			Entries:  []string{"sticker_1.webp"},
			Checksum: "deadbeef",
		},
	}}
}

func TestShareHandler(t *testing.T) {
	links := testLinks()
	mux := newMux(t, &fakePipeline{}, &fakeCounter{}, links)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/"+testToken+"/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), siteURL+"/file/"+testToken+"/")
	require.Contains(t, rec.Body.String(), "sticker_1.webp")
	require.Len(t, links.artifacts, 1)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/not-a-token/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHandler(t *testing.T) {
	links := testLinks()
	mux := newMux(t, &fakePipeline{}, &fakeCounter{}, links)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testToken+"/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "zipdata", rec.Body.String())
	require.Equal(t, contentTypeZip, rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename=Cats.zip`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, `"deadbeef"`, rec.Header().Get("ETag"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testToken+"/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/"+testToken+"/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounterHandler(t *testing.T) {
	c := &fakeCounter{counters: map[string]int64{"Cats": 4}}
	mux := newMux(t, &fakePipeline{}, c, &fakeLinks{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stat/Cats/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := &counterResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(resp))
	require.Equal(t, &counterResponse{ID: "Cats", Deliveries: 4}, resp)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stat/bad-id/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	c.err = fmt.Errorf("redis is down")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stat/Cats/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDownloadHandlerStream(t *testing.T) {
	testCases := []struct {
		name   string
		result *entity.PipelineResult
		counts int64
	}{
		{name: "ok", result: succeeded(), counts: 1},
		{name: "all failed", result: failed(common.ErrAllItemsFailed)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &fakeCounter{counters: make(map[string]int64)}
			p := &fakePipeline{
				result: tc.result,
				progress: []entity.Progress{
					{Completed: 1, Total: 2, Fraction: 0.5},
					{Completed: 2, Total: 2, Fraction: 1},
				},
			}
			mux := newMux(t, p, c, &fakeLinks{})

			req := httptest.NewRequest(http.MethodPost, "/download/", strings.NewReader(`{"link":"https://t.me/addstickers/Cats"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/x-ndjson")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, contentTypeNDJSON, rec.Header().Get("Content-Type"))
			require.True(t, rec.Flushed)

			var events []streamEvent
			dec := json.NewDecoder(rec.Body)
			for dec.More() {
				ev := streamEvent{}
				require.NoError(t, dec.Decode(&ev))
				events = append(events, ev)
			}

			require.Len(t, events, 3)
			require.Equal(t, 0.5, events[0].Progress.Fraction)
			require.Equal(t, 1.0, events[1].Progress.Fraction)
			require.Nil(t, events[2].Progress)
			require.NotNil(t, events[2].Result)
			require.Equal(t, tc.result.State.String(), events[2].Result.State)
			require.Equal(t, tc.counts, c.counters["Cats"])
		})
	}
}

func TestAcceptsNDJSON(t *testing.T) {
	testCases := []struct {
		accept   string
		expected bool
	}{
		{accept: "", expected: false},
		{accept: "application/json", expected: false},
		{accept: "application/x-ndjson", expected: true},
		{accept: "text/html, application/x-ndjson; q=0.9", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/download/", nil)
			req.Header.Set("Accept", tc.accept)
			require.Equal(t, tc.expected, acceptsNDJSON(req))
		})
	}
}

func TestRevokeHandler(t *testing.T) {
	links := testLinks()
	mux := newMux(t, &fakePipeline{}, &fakeCounter{}, links)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/file/"+testToken+"/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, links.artifacts)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/file/"+testToken+"/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testToken+"/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/file/not-a-token/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
