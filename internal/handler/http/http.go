package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/tpladapter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/service/pipeline"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/sink"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeZip    = "application/zip"
	contentTypeHTML   = "text/html; charset=utf-8"

	maxRequestSize = 64 << 10
)

var (
	tokenRegexp = regexp.MustCompile(`^[a-f\d]{8}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{12}$`)
	packRegexp  = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
)

type PipelineService interface {
	Run(ctx context.Context, link string, opts entity.DownloadOptions, onProgress entity.ProgressFunc) *entity.PipelineResult
	Stream(ctx context.Context, link string, opts entity.DownloadOptions) <-chan pipeline.Event
}

type CounterService interface {
	Record(ctx context.Context, id string) (int64, error)
	GetPackCounter(ctx context.Context, id string) (int64, error)
}

type LinkService interface {
	Get(ctx context.Context, token string) (*entity.ArchiveArtifact, error)
	Take(ctx context.Context, token string) (*entity.ArchiveArtifact, error)
}

type LinkRevoker interface {
	Release(ctx context.Context, token string) error
}

type PageRenderer interface {
	Render(page *tpladapter.SharePage) (string, error)
	RenderPack(page *tpladapter.PackPage) (string, error)
}

type downloadRequest struct {
	Link           string `json:"link"`
	Format         string `json:"format"`
	RetainOriginal *bool  `json:"retain_original"`
	Name           string `json:"name"`
}

type downloadResponse struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Location  string `json:"location,omitempty"`
	ShareURL  string `json:"share_url,omitempty"`
	Archive   string `json:"archive,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// streamEvent is one line of an NDJSON download response.
type streamEvent struct {
	Progress *entity.Progress  `json:"progress,omitempty"`
	Result   *downloadResponse `json:"result,omitempty"`
}

type counterResponse struct {
	ID         string `json:"id"`
	Deliveries int64  `json:"deliveries"`
}

// NewDownloadHandler runs the pipeline for the posted link and answers with the outcome.
// Options left unset in the request fall back to defaults.
func NewDownloadHandler(siteURL string, defaults entity.DownloadOptions, srv PipelineService, counter CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseDownloadRequest(w, r)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		opts := defaults
		if req.Format != "" {
			format, err := entity.ParseFormat(req.Format)
			if err != nil {
				http.Error(w, "Unsupported format", http.StatusBadRequest)

				return
			}
			opts.OutputFormat = format
		}
		if req.RetainOriginal != nil {
			opts.RetainOriginal = *req.RetainOriginal
		}
		opts.CustomArchiveName = req.Name

		if acceptsNDJSON(r) {
			streamDownload(w, r, srv.Stream(r.Context(), req.Link, opts), func(res *entity.PipelineResult) *downloadResponse {
				return finishDownload(r.Context(), siteURL, res, counter, log)
			})

			return
		}

		res := srv.Run(r.Context(), req.Link, opts, nil)

		writeJSON(w, statusFor(res), finishDownload(r.Context(), siteURL, res, counter, log))
	}
}

// finishDownload records a successful delivery and builds the response body.
func finishDownload(ctx context.Context, siteURL string, res *entity.PipelineResult, counter CounterService, log *slog.Logger) *downloadResponse {
	resp := &downloadResponse{
		RunID:     res.RunID,
		State:     res.State.String(),
		Location:  res.ArtifactLocation,
		Archive:   res.ArchiveName,
		Size:      res.Size,
		Succeeded: res.ItemsSucceeded,
		Failed:    res.ItemsFailed,
	}
	if res.Reason != nil {
		resp.Reason = res.Reason.Error()
	}
	if res.Token != "" {
		resp.ShareURL = sink.ShareURL(siteURL, res.Token)
	}

	if res.Succeeded() {
		if _, err := counter.Record(ctx, res.Identifier.String()); err != nil {
			log.Error("Cannot record delivery", slog.String("run_id", res.RunID), slog.Any("error", err))
		}
	}

	return resp
}

// streamDownload writes one JSON line per progress event and a last line with the result.
// The status is always 200 since it is sent before the outcome is known.
func streamDownload(w http.ResponseWriter, r *http.Request, events <-chan pipeline.Event, finish func(*entity.PipelineResult) *downloadResponse) {
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	w.Header().Set("Content-Type", contentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		line := streamEvent{Progress: ev.Progress}
		if ev.Result != nil {
			line.Result = finish(ev.Result)
		}

		// The channel is drained even when the client is gone so the run can finish.
		if r.Context().Err() != nil {
			continue
		}

		if err := enc.Encode(&line); err != nil {
			continue
		}
		rc.Flush()
	}
}

func acceptsNDJSON(r *http.Request) bool {
	for _, v := range strings.Split(r.Header.Get("Accept"), ",") {
		if mt, _, err := mime.ParseMediaType(strings.TrimSpace(v)); err == nil && mt == contentTypeNDJSON {
			return true
		}
	}

	return false
}

func NewShareHandler(links LinkService, tpl PageRenderer, siteURL string, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ShareHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if !tokenRegexp.MatchString(token) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		artifact, err := links.Get(r.Context(), token)
		if err != nil {
			writeLinkError(w, err)

			return
		}

		content, err := tpl.Render(&tpladapter.SharePage{
			Name:     artifact.Name,
			FileName: artifact.FileName(),
			FileURL:  sink.FileURL(siteURL, token),
			Size:     int64(len(artifact.Data)),
			Checksum: artifact.Checksum,
			Entries:  artifact.Entries,
		})
		if err != nil {
			log.Error("Cannot render page", slog.String("token", token), slog.Any("error", err))
			http.Error(w, "Cannot get page", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Write([]byte(content))
	}
}

// NewFileHandler streams the archive behind a link and revokes the link.
func NewFileHandler(links LinkService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if !tokenRegexp.MatchString(token) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		artifact, err := links.Take(r.Context(), token)
		if err != nil {
			writeLinkError(w, err)

			return
		}

		log.Info("Serve archive", slog.String("token", token), slog.String("name", artifact.Name), slog.Int("size", len(artifact.Data)))

		w.Header().Set("Content-Type", contentTypeZip)
		w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName()}))
		if artifact.Checksum != "" {
			w.Header().Set("ETag", strconv.Quote(artifact.Checksum))
		}

		if _, err := w.Write(artifact.Data); err != nil {
			log.Error("Cannot write archive", slog.String("token", token), slog.Any("error", err))
		}
	}
}

// NewRevokeHandler drops a link before its ttl runs out.
func NewRevokeHandler(links LinkRevoker, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RevokeHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if !tokenRegexp.MatchString(token) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := links.Release(r.Context(), token); err != nil {
			log.Warn("Cannot revoke link", slog.String("token", token), slog.Any("error", err))
			writeLinkError(w, err)

			return
		}

		log.Info("Link revoked", slog.String("token", token))
		w.WriteHeader(http.StatusNoContent)
	}
}

func NewCounterHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CounterHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !packRegexp.MatchString(id) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		counter, err := srv.GetPackCounter(r.Context(), id)
		if err != nil {
			http.Error(w, "Cannot get counter", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, &counterResponse{ID: id, Deliveries: counter})
	}
}

func parseDownloadRequest(w http.ResponseWriter, r *http.Request) (*downloadRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	req := &downloadRequest{}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == contentTypeJSON {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, fmt.Errorf("cannot decode request: %w", err)
		}

		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("cannot parse form: %w", err)
	}

	req.Link = r.PostForm.Get("link")
	req.Format = r.PostForm.Get("format")
	req.Name = r.PostForm.Get("name")
	if v := r.PostForm.Get("retain_original"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("cannot parse retain_original: %w", err)
		}
		req.RetainOriginal = &b
	}

	return req, nil
}

func statusFor(res *entity.PipelineResult) int {
	if res.Succeeded() {
		return http.StatusOK
	}

	switch {
	case errors.Is(res.Reason, common.ErrInvalidLink):
		return http.StatusBadRequest
	case errors.Is(res.Reason, common.ErrPackNotFound):
		return http.StatusNotFound
	case errors.Is(res.Reason, common.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(res.Reason, common.ErrAllItemsFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(res.Reason, common.ErrCancelled):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func writeLinkError(w http.ResponseWriter, err error) {
	if errors.Is(err, common.ErrLinkNotFound) {
		http.Error(w, "Link expired or not found", http.StatusNotFound)

		return
	}

	http.Error(w, "Cannot get archive", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
