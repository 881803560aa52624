package main

import (
	"github.com/spf13/cobra"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/app"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	newApp := func() *app.App {
		return app.New(configFlag)
	}

	rootCmd := &cobra.Command{
		Use:           "stickerdl",
		Short:         "Download sticker packs as zip archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "config.yml", "Configuration file path")

	rootCmd.AddCommand(newFetchCommand(newApp))
	rootCmd.AddCommand(newInfoCommand(newApp))
	rootCmd.AddCommand(newServeCommand(newApp))

	return rootCmd
}
