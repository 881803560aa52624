package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/validator"
)

const (
	serviceName     = "preview"
	mimeTypeUnknown = "unknown"
)

type MetadataProvider interface {
	FetchMetadata(ctx context.Context, id entity.PackIdentifier) (*entity.PackMetadata, error)
}

type AssetFetcher interface {
	FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error)
}

type FormatDetector interface {
	Detect(data []byte) (entity.Format, error)
}

// previewService shows a pack before it is downloaded: its metadata and its preview images.
type previewService struct {
	provider MetadataProvider
	fetcher  AssetFetcher
	detector FormatDetector
	log      *slog.Logger
}

func NewPreviewService(provider MetadataProvider, fetcher AssetFetcher, detector FormatDetector, log *slog.Logger) *previewService {
	return &previewService{
		provider: provider,
		fetcher:  fetcher,
		detector: detector,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// Lookup validates link and describes the pack it points to.
func (s *previewService) Lookup(ctx context.Context, link string) (*entity.PackPreview, error) {
	id, ok := validator.ExtractIdentifier(link)
	if !ok {
		return nil, common.ErrInvalidLink
	}

	return s.Preview(ctx, id)
}

func (s *previewService) Preview(ctx context.Context, id entity.PackIdentifier) (*entity.PackPreview, error) {
	meta, err := s.metadata(ctx, id)
	if err != nil {
		return nil, err
	}

	types := make(map[string]int)
	for _, item := range meta.Items {
		mimeType := item.MIMEType
		if mimeType == "" {
			mimeType = mimeTypeUnknown
		}
		types[mimeType]++
	}
	if missing := meta.ItemCount - len(meta.Items); missing > 0 {
		types[mimeTypeUnknown] += missing
	}

	return &entity.PackPreview{
		Identifier:  meta.Identifier,
		Title:       meta.Title,
		ItemCount:   meta.ItemCount,
		Previews:    len(meta.PreviewRefs),
		Description: meta.Description,
		Types:       types,
	}, nil
}

// Thumbnail returns the n-th preview image of a pack and its format.
func (s *previewService) Thumbnail(ctx context.Context, id entity.PackIdentifier, n int) ([]byte, entity.Format, error) {
	meta, err := s.metadata(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if n < 0 || n >= len(meta.PreviewRefs) {
		return nil, "", common.ErrPreviewNotFound
	}

	data, err := s.fetcher.FetchItem(ctx, entity.ItemReference{Index: n, Locator: meta.PreviewRefs[n]})
	if err != nil {
		s.log.Error("Cannot fetch preview", slog.String("id", id.String()), slog.Int("n", n), slog.Any("error", err))

		return nil, "", fmt.Errorf("cannot fetch preview %d of %s: %w", n, id, err)
	}

	format, err := s.detector.Detect(data)
	if err != nil {
		return nil, "", fmt.Errorf("cannot detect preview %d of %s: %w", n, id, err)
	}

	return data, format, nil
}

func (s *previewService) metadata(ctx context.Context, id entity.PackIdentifier) (*entity.PackMetadata, error) {
	meta, err := s.provider.FetchMetadata(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrPackNotFound), errors.Is(err, common.ErrProvider):
			return nil, err
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", common.ErrCancelled, ctx.Err())
		}

		return nil, fmt.Errorf("%w: %w", common.ErrProvider, err)
	}

	if meta == nil {
		return nil, common.ErrPackNotFound
	}

	return meta, nil
}
