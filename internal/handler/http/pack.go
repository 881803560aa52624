package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/tpladapter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const packLinkPrefix = "https://t.me/addstickers/"

type PreviewService interface {
	Preview(ctx context.Context, id entity.PackIdentifier) (*entity.PackPreview, error)
	Thumbnail(ctx context.Context, id entity.PackIdentifier, n int) ([]byte, entity.Format, error)
}

// NewPackHandler describes a pack without downloading it: an HTML page by default,
// JSON when the client asks for it.
func NewPackHandler(siteURL string, srv PreviewService, tpl PageRenderer, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PackHandler"))
	siteURL = strings.TrimRight(siteURL, "/")

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !packRegexp.MatchString(id) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		p, err := srv.Preview(r.Context(), entity.PackIdentifier(id))
		if err != nil {
			log.Warn("Cannot preview pack", slog.String("id", id), slog.Any("error", err))
			writePreviewError(w, err)

			return
		}

		if acceptsJSON(r) {
			writeJSON(w, http.StatusOK, p)

			return
		}

		content, err := tpl.RenderPack(&tpladapter.PackPage{
			ID:          p.Identifier.String(),
			Title:       p.Title,
			Count:       p.ItemCount,
			Previews:    p.Previews,
			Description: p.Description,
			Types:       p.Types,
			Link:        packLinkPrefix + id,
			DownloadURL: siteURL + "/download/",
			PreviewURL:  siteURL + "/pack/" + id + "/preview/",
		})
		if err != nil {
			log.Error("Cannot render page", slog.String("id", id), slog.Any("error", err))
			http.Error(w, "Cannot get page", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Write([]byte(content))
	}
}

// NewPreviewImageHandler serves the n-th preview image of a pack as is.
func NewPreviewImageHandler(srv PreviewService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PreviewImageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		n, err := strconv.Atoi(r.PathValue("n"))
		if !packRegexp.MatchString(id) || err != nil || n < 0 {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		data, format, err := srv.Thumbnail(r.Context(), entity.PackIdentifier(id), n)
		if err != nil {
			log.Warn("Cannot get preview", slog.String("id", id), slog.Int("n", n), slog.Any("error", err))
			writePreviewError(w, err)

			return
		}

		w.Header().Set("Content-Type", "image/"+format.String())
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), contentTypeJSON)
}

func writePreviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidLink):
		http.Error(w, "Bad request", http.StatusBadRequest)
	case errors.Is(err, common.ErrPackNotFound), errors.Is(err, common.ErrPreviewNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, common.ErrProvider), errors.Is(err, common.ErrFetch):
		http.Error(w, "Provider unavailable", http.StatusBadGateway)
	case errors.Is(err, common.ErrCancelled):
		http.Error(w, "Cancelled", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Cannot get pack", http.StatusInternalServerError)
	}
}
