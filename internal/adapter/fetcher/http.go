package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/config"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpFetcher downloads items over http(s). Transport errors, 5xx and 429 are
// retried with exponential backoff, other statuses fail at once.
type httpFetcher struct {
	client          HTTPDoer
	retries         uint64
	timeout         time.Duration
	maxSize         int64
	initialInterval time.Duration
	log             *slog.Logger
}

func NewHTTPFetcher(cfg *config.FetcherConfig, client HTTPDoer, log *slog.Logger) *httpFetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &httpFetcher{
		client:          client,
		retries:         cfg.Retries,
		timeout:         cfg.Timeout,
		maxSize:         cfg.MaxItemSize,
		initialInterval: defaultInitialInterval,
		log:             log.With(slog.String("item", "HTTPFetcher")),
	}
}

func (f *httpFetcher) FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error) {
	attempt := 0

	operation := func() ([]byte, error) {
		attempt++

		data, err := f.fetch(ctx, ref.Locator)
		if err != nil && !isPermanent(err) {
			f.log.Debug("Fetch attempt failed", slog.String("url", ref.Locator), slog.Int("attempt", attempt), slog.Any("error", err))
		}

		return data, err
	}

	data, err := backoff.RetryWithData[[]byte](operation, backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.retries), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrFetch, ref.Locator, err)
	}

	return data, nil
}

func (f *httpFetcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialInterval
	b.MaxInterval = defaultMaxInterval
	b.MaxElapsedTime = 0

	return b
}

func (f *httpFetcher) fetch(ctx context.Context, locator string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("cannot build request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot get item: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, backoff.Permanent(fmt.Errorf("server returned %d", resp.StatusCode))
	}

	body := io.Reader(resp.Body)
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("cannot read item: %w", err)
	}

	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, backoff.Permanent(fmt.Errorf("item exceeds %d bytes", f.maxSize))
	}

	return data, nil
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError

	return errors.As(err, &permanent)
}
