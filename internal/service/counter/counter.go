package counter

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	serviceName = "counter"
)

type CounterRepository interface {
	IncPackCounter(ctx context.Context, id string) (int64, error)
	GetPackCounter(ctx context.Context, id string) (int64, error)
}

// counterService keeps track of how many archives were delivered per pack.
type counterService struct {
	repo CounterRepository
	log  *slog.Logger
}

func NewCounterService(repo CounterRepository, log *slog.Logger) *counterService {
	return &counterService{
		repo: repo,
		log:  log.With(slog.String("service", serviceName)),
	}
}

func (c *counterService) Record(ctx context.Context, id string) (int64, error) {
	counter, err := c.repo.IncPackCounter(ctx, id)
	if err != nil {
		c.log.Error("Cannot increment pack counter", slog.String("id", id), slog.Any("error", err))

		return 0, fmt.Errorf("cannot record delivery of %s: %w", id, err)
	}

	return counter, nil
}

func (c *counterService) GetPackCounter(ctx context.Context, id string) (int64, error) {
	counter, err := c.repo.GetPackCounter(ctx, id)
	if err != nil {
		c.log.Error("Cannot get pack counter", slog.String("id", id), slog.Any("error", err))

		return 0, fmt.Errorf("cannot get pack %s counter: %w", id, err)
	}

	return counter, nil
}
