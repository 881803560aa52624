package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/app"
)

func newServeCommand(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve sticker pack downloads over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp()
			if err := a.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-ctx.Done()
			fmt.Fprintln(cmd.ErrOrStderr(), "Received termination signal. Shutting down...")
			a.Stop()

			return nil
		},
	}
}
