package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/catalog"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/fetcher"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/remote"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/adapter/tpladapter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/config"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/converter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	httphandler "github.com/SaeedX302/tg-Sticker-Downloder/internal/handler/http"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/repository/artifact"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/service/counter"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/service/pipeline"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/service/preview"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/sink"
)

const (
	pingTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	rdb     *redis.Client
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

// Init loads the config and builds the logger. Start and Fetch call it on demand.
func (a *App) Init() error {
	if a.cfg != nil {
		return nil
	}

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *App) Config() *config.Config {
	return a.cfg
}

// Start serves the HTTP host. Archives are published as one-time links kept in redis.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	log := a.log

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("cannot parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if _, err = rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()

		return fmt.Errorf("cannot connect to redis: %w", err)
	}
	a.rdb = rdb

	provider, mux, err := a.newSource()
	if err != nil {
		return err
	}

	tpl, err := tpladapter.NewTplAdapter(a.cfg.Sink.ShareTemplate, a.cfg.Sink.PackTemplate)
	if err != nil {
		return err
	}

	repo := artifact.NewArtifactRepository(rdb, log)
	links := sink.NewLinkSink(repo, a.cfg.URL, a.cfg.Sink.LinkTTL, log)
	pSrv := pipeline.NewPipelineService(provider, mux, converter.New(), links, a.pipelineConfig(), log)
	cSrv := counter.NewCounterService(repo, log)
	pvSrv := preview.NewPreviewService(provider, mux, converter.New(), log)

	handler := http.NewServeMux()
	handler.Handle("POST /download/{$}", httphandler.NewDownloadHandler(a.cfg.URL, a.cfg.DownloadOptions(), pSrv, cSrv, log))
	handler.Handle("GET /share/{token}/{$}", httphandler.NewShareHandler(repo, tpl, a.cfg.URL, log))
	handler.Handle("GET /file/{token}/{$}", httphandler.NewFileHandler(repo, log))
	handler.Handle("DELETE /file/{token}/{$}", httphandler.NewRevokeHandler(links, log))
	handler.Handle("GET /stat/{id}/{$}", httphandler.NewCounterHandler(cSrv, log))
	handler.Handle("GET /pack/{id}/{$}", httphandler.NewPackHandler(a.cfg.URL, pvSrv, tpl, log))
	handler.Handle("GET /pack/{id}/preview/{n}/{$}", httphandler.NewPreviewImageHandler(pvSrv, log))

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: handler,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()

	return nil
}

// Fetch runs the pipeline once and saves the archive under outDir, or the configured directory when outDir is empty.
func (a *App) Fetch(ctx context.Context, link string, opts entity.DownloadOptions, outDir string, onProgress entity.ProgressFunc) (*entity.PipelineResult, error) {
	if err := a.Init(); err != nil {
		return nil, err
	}

	provider, mux, err := a.newSource()
	if err != nil {
		return nil, err
	}

	if outDir == "" {
		outDir = a.cfg.Sink.OutDir
	}

	fsSink := sink.NewFSSink(outDir, a.log)
	pSrv := pipeline.NewPipelineService(provider, mux, converter.New(), fsSink, a.pipelineConfig(), a.log)

	return pSrv.Run(ctx, link, opts, onProgress), nil
}

// Lookup describes the pack behind link without downloading its stickers.
func (a *App) Lookup(ctx context.Context, link string) (*entity.PackPreview, error) {
	if err := a.Init(); err != nil {
		return nil, err
	}

	provider, mux, err := a.newSource()
	if err != nil {
		return nil, err
	}

	return preview.NewPreviewService(provider, mux, converter.New(), a.log).Lookup(ctx, link)
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	if a.rdb != nil {
		a.rdb.Close()
	}
}

func (a *App) pipelineConfig() pipeline.Config {
	return pipeline.Config{Workers: a.cfg.Pipeline.Workers}
}

// newSource builds the metadata provider for the configured source kind and a fetcher
// that resolves both its locators and plain http(s) ones.
func (a *App) newSource() (pipeline.MetadataProvider, *fetcher.Mux, error) {
	mux := fetcher.NewMux()
	httpFetcher := fetcher.NewHTTPFetcher(&a.cfg.Fetcher, &http.Client{}, a.log)
	mux.Handle("http", httpFetcher)
	mux.Handle("https", httpFetcher)

	switch a.cfg.Source.Kind {
	case config.SourceKindCatalog:
		cat := catalog.NewCatalogAdapter(&a.cfg.Source, a.log)
		mux.Handle(catalog.Scheme, cat)

		return cat, mux, nil
	case config.SourceKindRemote:
		r, err := remote.NewRemoteAdapter(&a.cfg.Source, &http.Client{Timeout: a.cfg.Source.Timeout}, a.log)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot create remote source: %w", err)
		}

		return r, mux, nil
	}

	return nil, nil, fmt.Errorf("unknown source kind: %s", a.cfg.Source.Kind)
}

func newLogger(level string) (*slog.Logger, error) {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, lo)), nil
}
