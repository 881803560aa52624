package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	KeyArtifact      = "ar" // HASH. ar:{token} name, data, checksum, entries, created. Expires with the link.
	KeyPackCounter   = "pc" // HASH. {pack_id}: number of delivered archives. HINCRBY pc {pack_id} 1
	KeySeparator     = ":"
	entriesSeparator = "\n"

	fieldName     = "name"
	fieldData     = "data"
	fieldChecksum = "checksum"
	fieldEntries  = "entries"
	fieldCreated  = "created"
)

type artifactRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewArtifactRepository(cl *redis.Client, log *slog.Logger) *artifactRepository {
	return &artifactRepository{
		cl:  cl,
		log: log.With(slog.String("item", "ArtifactRepository")),
	}
}

// Save stores artifact under token for ttl. A key without expiry is never written.
func (r *artifactRepository) Save(ctx context.Context, token string, artifact *entity.ArchiveArtifact, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cannot save artifact %s: ttl must be positive, got %s", token, ttl)
	}

	key := getKey(KeyArtifact, token)

	pipe := r.cl.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldName:     artifact.Name,
		fieldData:     artifact.Data,
		fieldChecksum: artifact.Checksum,
		fieldEntries:  strings.Join(artifact.Entries, entriesSeparator),
		fieldCreated:  artifact.CreatedAt.UnixNano(),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Cannot save artifact", slog.String("token", token), slog.Any("error", err))

		return fmt.Errorf("cannot save artifact %s: %w", token, err)
	}

	return nil
}

// Get returns the artifact behind token without consuming the link.
func (r *artifactRepository) Get(ctx context.Context, token string) (*entity.ArchiveArtifact, error) {
	fields, err := r.cl.HGetAll(ctx, getKey(KeyArtifact, token)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get artifact %s: %w", token, err)
	}

	return r.decode(token, fields)
}

// Take returns the artifact and removes it in one transaction, so a link can be used once.
func (r *artifactRepository) Take(ctx context.Context, token string) (*entity.ArchiveArtifact, error) {
	key := getKey(KeyArtifact, token)

	var get *redis.MapStringStringCmd
	_, err := r.cl.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot take artifact %s: %w", token, err)
	}

	return r.decode(token, get.Val())
}

func (r *artifactRepository) Delete(ctx context.Context, token string) error {
	n, err := r.cl.Del(ctx, getKey(KeyArtifact, token)).Result()
	if err != nil {
		return fmt.Errorf("cannot delete artifact %s: %w", token, err)
	}

	if n == 0 {
		return common.ErrLinkNotFound
	}

	return nil
}

func (r *artifactRepository) IncPackCounter(ctx context.Context, id string) (int64, error) {
	counter, err := r.cl.HIncrBy(ctx, KeyPackCounter, id, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment pack %s counter: %w", id, err)
	}

	return counter, nil
}

func (r *artifactRepository) GetPackCounter(ctx context.Context, id string) (int64, error) {
	val, err := r.cl.HGet(ctx, KeyPackCounter, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, fmt.Errorf("cannot get pack %s counter: %w", id, err)
	}

	counter, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		r.log.Error("Cannot convert counter value", slog.String("id", id), slog.Any("error", err))

		return 0, fmt.Errorf("cannot parse pack %s counter: %w", id, err)
	}

	return counter, nil
}

func (r *artifactRepository) decode(token string, fields map[string]string) (*entity.ArchiveArtifact, error) {
	if len(fields) < 1 {
		return nil, common.ErrLinkNotFound
	}

	a := &entity.ArchiveArtifact{
		Name:     fields[fieldName],
		Data:     []byte(fields[fieldData]),
		Checksum: fields[fieldChecksum],
	}

	if entries := fields[fieldEntries]; entries != "" {
		a.Entries = strings.Split(entries, entriesSeparator)
	}

	if created, err := strconv.ParseInt(fields[fieldCreated], 10, 64); err == nil {
		a.CreatedAt = time.Unix(0, created)
	} else {
		r.log.Warn("Artifact has no creation time", slog.String("token", token))
	}

	return a, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
