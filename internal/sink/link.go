package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

type ArtifactRepository interface {
	Save(ctx context.Context, token string, artifact *entity.ArchiveArtifact, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// linkSink keeps archives in a repository for ttl and hands out revocable download links.
type linkSink struct {
	repo    ArtifactRepository
	baseURL string
	ttl     time.Duration
	log     *slog.Logger
}

func NewLinkSink(repo ArtifactRepository, baseURL string, ttl time.Duration, log *slog.Logger) *linkSink {
	return &linkSink{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		log:     log.With(slog.String("item", "LinkSink")),
	}
}

func (s *linkSink) Deliver(ctx context.Context, artifact *entity.ArchiveArtifact) (*entity.Delivery, error) {
	token := uuid.NewString()

	if err := s.repo.Save(ctx, token, artifact, s.ttl); err != nil {
		return nil, fmt.Errorf("%w: cannot store archive: %w", common.ErrDelivery, err)
	}

	s.log.Info("Archive published", slog.String("token", token), slog.String("name", artifact.Name), slog.Duration("ttl", s.ttl))

	return &entity.Delivery{
		Location:  FileURL(s.baseURL, token),
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl),
	}, nil
}

// Release revokes a link before its ttl runs out.
func (s *linkSink) Release(ctx context.Context, token string) error {
	if err := s.repo.Delete(ctx, token); err != nil {
		return fmt.Errorf("cannot release link %s: %w", token, err)
	}

	return nil
}

func FileURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/file/" + token + "/"
}

func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/share/" + token + "/"
}
