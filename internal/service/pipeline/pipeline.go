// Package pipeline turns a sticker pack link into a delivered archive.
//
// A run walks Idle → ValidatingLink → FetchingMetadata → Processing →
// Assembling → Delivering and ends in Succeeded or Failed. Items are fetched
// and converted by a bounded worker pool; a failing item is counted and
// skipped, it never fails the run on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/archive"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/validator"
)

const (
	serviceName = "pipeline"

	itemNamePrefix  = "sticker_"
	originalsFolder = "originals"
	defaultWorkers  = 4
)

type MetadataProvider interface {
	FetchMetadata(ctx context.Context, id entity.PackIdentifier) (*entity.PackMetadata, error)
}

type AssetFetcher interface {
	FetchItem(ctx context.Context, ref entity.ItemReference) ([]byte, error)
}

type FormatConverter interface {
	Detect(data []byte) (entity.Format, error)
	Convert(data []byte, target entity.Format) ([]byte, error)
}

type OutputSink interface {
	Deliver(ctx context.Context, artifact *entity.ArchiveArtifact) (*entity.Delivery, error)
}

type Config struct {
	Workers int
}

type PipelineService struct {
	provider  MetadataProvider
	fetcher   AssetFetcher
	converter FormatConverter
	sink      OutputSink
	workers   int
	log       *slog.Logger
}

func NewPipelineService(provider MetadataProvider, fetcher AssetFetcher, converter FormatConverter, sink OutputSink, cfg Config, log *slog.Logger) *PipelineService {
	workers := cfg.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	return &PipelineService{
		provider:  provider,
		fetcher:   fetcher,
		converter: converter,
		sink:      sink,
		workers:   workers,
		log:       log.With(slog.String("service", serviceName)),
	}
}

type itemOutcome struct {
	index     int
	data      []byte
	original  []byte
	srcFormat entity.Format
	err       error
}

type run struct {
	result     *entity.PipelineResult
	state      entity.State
	total      int
	finished   bool // Fraction 1 was reported
	onProgress entity.ProgressFunc
	log        *slog.Logger
}

func (r *run) enter(state entity.State) {
	if r.state.IsTerminal() {
		r.log.Warn("Ignore transition out of terminal state", slog.String("from", r.state.String()), slog.String("to", state.String()))

		return
	}

	r.log.Debug("State changed", slog.String("from", r.state.String()), slog.String("to", state.String()))
	r.state = state
}

// fail ends the run. Unless the pack was never resolved, progress is completed first
// so that observers always see a final fraction of 1.
func (r *run) fail(reason error) *entity.PipelineResult {
	if !r.finished && reportsProgress(reason) {
		r.progress(r.total, r.total)
	}

	r.enter(entity.StateFailed)
	r.result.State = entity.StateFailed
	r.result.Reason = reason
	r.log.Error("Run failed", slog.Any("error", reason))

	return r.result
}

func (r *run) progress(completed, total int) {
	fraction := 1.0
	if total > 0 {
		fraction = float64(completed) / float64(total)
	}
	if fraction >= 1 {
		r.finished = true
	}

	if r.onProgress == nil {
		return
	}

	r.onProgress(entity.Progress{Completed: completed, Total: total, Fraction: fraction})
}

// reportsProgress is false for failures where no pack was resolved.
func reportsProgress(reason error) bool {
	return !errors.Is(reason, common.ErrInvalidLink) &&
		!errors.Is(reason, common.ErrPackNotFound) &&
		!errors.Is(reason, common.ErrProvider)
}

// Run executes one pipeline invocation. It always returns a terminal result;
// Reason matches one of the common errors when the run failed.
func (s *PipelineService) Run(ctx context.Context, link string, opts entity.DownloadOptions, onProgress entity.ProgressFunc) *entity.PipelineResult {
	runID := uuid.NewString()
	r := &run{
		result:     &entity.PipelineResult{RunID: runID},
		state:      entity.StateIdle,
		onProgress: onProgress,
		log:        s.log.With(slog.String("run_id", runID)),
	}

	r.enter(entity.StateValidatingLink)
	id, ok := validator.ExtractIdentifier(link)
	if !ok {
		return r.fail(common.ErrInvalidLink)
	}
	r.result.Identifier = id
	r.log = r.log.With(slog.String("pack", id.String()))

	if opts.OutputFormat == "" {
		opts.OutputFormat = entity.FormatWebP
	}
	if _, err := entity.ParseFormat(string(opts.OutputFormat)); err != nil {
		return r.fail(fmt.Errorf("%w: %w", common.ErrUnsupportedFormat, err))
	}

	if ctx.Err() != nil {
		return r.fail(common.ErrCancelled)
	}

	r.enter(entity.StateFetchingMetadata)
	meta, err := s.provider.FetchMetadata(ctx, id)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return r.fail(common.ErrCancelled)
		case errors.Is(err, common.ErrPackNotFound):
			return r.fail(common.ErrPackNotFound)
		case errors.Is(err, common.ErrProvider):
			return r.fail(err)
		default:
			return r.fail(fmt.Errorf("%w: %w", common.ErrProvider, err))
		}
	}

	if meta == nil {
		return r.fail(common.ErrPackNotFound)
	}

	if meta.ItemCount < 0 {
		return r.fail(fmt.Errorf("%w: negative item count %d", common.ErrProvider, meta.ItemCount))
	}
	r.total = meta.ItemCount

	r.log.Info("Start processing", slog.String("title", meta.Title), slog.Int("items", meta.ItemCount), slog.String("format", opts.OutputFormat.String()))

	r.enter(entity.StateProcessing)
	outcomes := s.process(ctx, itemRefs(meta), opts.OutputFormat, r)

	for _, o := range outcomes {
		if o.err != nil {
			r.result.ItemsFailed++
		} else {
			r.result.ItemsSucceeded++
		}
	}

	if ctx.Err() != nil {
		return r.fail(common.ErrCancelled)
	}

	if meta.ItemCount > 0 && r.result.ItemsFailed == meta.ItemCount {
		return r.fail(common.ErrAllItemsFailed)
	}

	r.enter(entity.StateAssembling)
	if meta.ItemCount == 0 {
		r.progress(0, 0)
	}

	name := archiveName(opts.CustomArchiveName, meta)
	artifact, err := assemble(name, outcomes, opts)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", common.ErrDelivery, err))
	}

	if ctx.Err() != nil {
		return r.fail(common.ErrCancelled)
	}

	r.enter(entity.StateDelivering)
	delivery, err := s.sink.Deliver(ctx, artifact)
	if err != nil {
		if ctx.Err() != nil {
			return r.fail(fmt.Errorf("%w: %w", common.ErrCancelled, err))
		}

		if errors.Is(err, common.ErrDelivery) {
			return r.fail(err)
		}

		return r.fail(fmt.Errorf("%w: %w", common.ErrDelivery, err))
	}

	r.enter(entity.StateSucceeded)
	r.result.State = entity.StateSucceeded
	r.result.ArtifactLocation = delivery.Location
	r.result.Token = delivery.Token
	r.result.ArchiveName = artifact.Name
	r.result.Size = int64(len(artifact.Data))

	r.log.Info("Run succeeded",
		slog.String("location", delivery.Location),
		slog.Int("succeeded", r.result.ItemsSucceeded),
		slog.Int("failed", r.result.ItemsFailed),
	)

	return r.result
}

// process runs every item through the worker pool. Outcomes are returned in index order.
func (s *PipelineService) process(ctx context.Context, refs []entity.ItemReference, format entity.Format, r *run) []itemOutcome {
	total := len(refs)
	outcomes := make([]itemOutcome, total)
	if total == 0 {
		return outcomes
	}

	in := make(chan entity.ItemReference, total)
	out := make(chan itemOutcome, total)

	for _, ref := range refs {
		in <- ref
	}
	close(in)

	workers := min(s.workers, total)

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go s.worker(ctx, n, format, in, out, r.log, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	completed := 0
	for o := range out {
		outcomes[o.index] = o
		completed++
		r.progress(completed, total)
	}

	return outcomes
}

func (s *PipelineService) worker(ctx context.Context, n int, format entity.Format, in chan entity.ItemReference, out chan itemOutcome, log *slog.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	log = log.With(slog.Int("worker_id", n))

	for ref := range in {
		if ctx.Err() != nil {
			out <- itemOutcome{index: ref.Index, err: common.ErrCancelled}

			continue
		}

		outcome := s.processItem(ctx, ref, format)
		if outcome.err != nil {
			log.Warn("Skip item", slog.Int("index", ref.Index), slog.String("locator", ref.Locator), slog.Any("error", outcome.err))
		}

		out <- outcome
	}
}

func (s *PipelineService) processItem(ctx context.Context, ref entity.ItemReference, format entity.Format) itemOutcome {
	outcome := itemOutcome{index: ref.Index}

	data, err := s.fetcher.FetchItem(ctx, ref)
	if err != nil {
		if !errors.Is(err, common.ErrFetch) {
			err = fmt.Errorf("%w: %w", common.ErrFetch, err)
		}
		outcome.err = err

		return outcome
	}

	srcFormat, err := s.converter.Detect(data)
	if err != nil {
		outcome.err = asConversionError(err)

		return outcome
	}

	converted, err := s.converter.Convert(data, format)
	if err != nil {
		outcome.err = asConversionError(err)

		return outcome
	}

	outcome.data = converted
	outcome.original = data
	outcome.srcFormat = srcFormat

	return outcome
}

func asConversionError(err error) error {
	if errors.Is(err, common.ErrConversion) {
		return err
	}

	return fmt.Errorf("%w: %w", common.ErrConversion, err)
}

func assemble(name string, outcomes []itemOutcome, opts entity.DownloadOptions) (*entity.ArchiveArtifact, error) {
	a := archive.New(name)

	for _, o := range outcomes {
		if o.err != nil {
			continue
		}

		base := fmt.Sprintf("%s%d", itemNamePrefix, o.index+1)
		if _, err := a.Add(base+"."+opts.OutputFormat.Extension(), o.data); err != nil {
			return nil, fmt.Errorf("cannot add item %d: %w", o.index, err)
		}

		if opts.RetainOriginal {
			if _, err := a.Add(originalsFolder+"/"+base+"."+o.srcFormat.Extension(), o.original); err != nil {
				return nil, fmt.Errorf("cannot add original of item %d: %w", o.index, err)
			}
		}
	}

	artifact, err := a.Finalize()
	if err != nil {
		return nil, fmt.Errorf("cannot finalize archive: %w", err)
	}

	return artifact, nil
}

// itemRefs returns exactly ItemCount references. Missing references are filled by
// cycling the previews; with no previews the locator stays empty and the item fails.
func itemRefs(meta *entity.PackMetadata) []entity.ItemReference {
	refs := make([]entity.ItemReference, meta.ItemCount)

	for i := range refs {
		switch {
		case i < len(meta.Items):
			refs[i] = meta.Items[i]
		case len(meta.PreviewRefs) > 0:
			refs[i] = entity.ItemReference{Locator: meta.PreviewRefs[i%len(meta.PreviewRefs)]}
		}

		refs[i].Index = i
	}

	return refs
}

func archiveName(custom string, meta *entity.PackMetadata) string {
	for _, candidate := range []string{custom, meta.Title, meta.Identifier.String()} {
		if name := sanitizeName(candidate); name != "" {
			return name
		}
	}

	return "stickers"
}

func sanitizeName(name string) string {
	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}

		return r
	}, name)

	return strings.Trim(name, " .")
}

// Event is one element of a Stream: either a progress update or the terminal result.
type Event struct {
	Progress *entity.Progress
	Result   *entity.PipelineResult
}

// Stream runs the pipeline in the background. The channel carries progress events,
// then exactly one result, then closes. Progress is dropped once ctx is done.
func (s *PipelineService) Stream(ctx context.Context, link string, opts entity.DownloadOptions) <-chan Event {
	ch := make(chan Event, 1)

	go func() {
		defer close(ch)

		result := s.Run(ctx, link, opts, func(p entity.Progress) {
			select {
			case ch <- Event{Progress: &p}:
			case <-ctx.Done():
			}
		})

		ch <- Event{Result: result}
	}()

	return ch
}
