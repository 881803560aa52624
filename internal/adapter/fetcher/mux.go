// Package fetcher retrieves sticker bytes for item references.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

type Fetcher interface {
	FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error)
}

// Mux dispatches a reference to the fetcher registered for its locator scheme.
type Mux struct {
	fetchers map[string]Fetcher
}

func NewMux() *Mux {
	return &Mux{
		fetchers: make(map[string]Fetcher),
	}
}

func (m *Mux) Handle(scheme string, f Fetcher) {
	m.fetchers[strings.ToLower(scheme)] = f
}

func (m *Mux) FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error) {
	u, err := url.Parse(ref.Locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", common.ErrFetch, common.ErrUnsupportedLocator, err)
	}

	f, exists := m.fetchers[strings.ToLower(u.Scheme)]
	if !exists {
		return nil, fmt.Errorf("%w: %w: %q", common.ErrFetch, common.ErrUnsupportedLocator, ref.Locator)
	}

	return f.FetchItem(ctx, ref)
}
