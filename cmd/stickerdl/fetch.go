package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/app"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const progressSteps = 100

type fetchFlags struct {
	format   string
	original bool
	name     string
	out      string
}

func newFetchCommand(newApp func() *app.App) *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch <link>",
		Short: "Download a sticker pack into a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp()
			if err := a.Init(); err != nil {
				return err
			}

			opts, err := flags.options(cmd, a.Config().DownloadOptions())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bar := newProgressBar(cmd.ErrOrStderr())
			res, err := a.Fetch(ctx, args[0], opts, flags.out, func(p entity.Progress) {
				bar.Set(int(p.Fraction * progressSteps))
			})
			if err != nil {
				return err
			}
			bar.Finish()

			return report(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format: webp, gif or png")
	cmd.Flags().BoolVar(&flags.original, "original", false, "Keep original files next to converted ones")
	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "Archive name, defaults to the pack title")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output directory")

	return cmd
}

// options overrides the configured defaults with the flags given on the command line.
func (f *fetchFlags) options(cmd *cobra.Command, defaults entity.DownloadOptions) (entity.DownloadOptions, error) {
	opts := defaults

	if cmd.Flags().Changed("format") {
		format, err := entity.ParseFormat(f.format)
		if err != nil {
			return opts, err
		}
		opts.OutputFormat = format
	}

	if cmd.Flags().Changed("original") {
		opts.RetainOriginal = f.original
	}

	opts.CustomArchiveName = f.name

	return opts, nil
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(progressSteps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("stickers"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}

func report(w io.Writer, res *entity.PipelineResult) error {
	if !res.Succeeded() {
		return errors.New(failureMessage(res.Reason))
	}

	fmt.Fprintf(w, "Saved %s (%s)\n", res.ArtifactLocation, humanize.Bytes(uint64(res.Size)))
	if res.ItemsFailed > 0 {
		fmt.Fprintf(w, "%d of %d stickers could not be downloaded\n", res.ItemsFailed, res.ItemsFailed+res.ItemsSucceeded)
	}

	return nil
}

func failureMessage(reason error) string {
	switch {
	case errors.Is(reason, common.ErrInvalidLink):
		return "The link is not a sticker pack link"
	case errors.Is(reason, common.ErrPackNotFound):
		return "Sticker pack not found"
	case errors.Is(reason, common.ErrProvider):
		return fmt.Sprintf("Cannot reach the sticker service: %v", reason)
	case errors.Is(reason, common.ErrAllItemsFailed):
		return "None of the stickers could be downloaded"
	case errors.Is(reason, common.ErrStorageFull):
		return "Not enough space to save the archive"
	case errors.Is(reason, common.ErrStorageUnwritable):
		return "The output directory is not writable"
	case errors.Is(reason, common.ErrDelivery):
		return fmt.Sprintf("Cannot save the archive: %v", reason)
	case errors.Is(reason, common.ErrCancelled):
		return "Download cancelled"
	}

	return fmt.Sprintf("Download failed: %v", reason)
}
