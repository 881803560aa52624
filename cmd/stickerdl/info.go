package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/app"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

func newInfoCommand(newApp func() *app.App) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "info <link>",
		Short: "Show a sticker pack without downloading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp()
			if err := a.Init(); err != nil {
				return err
			}

			p, err := a.Lookup(ctx, args[0])
			if err != nil {
				return errors.New(failureMessage(err))
			}

			if jsonFlag {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(p)
			}

			describe(cmd.OutOrStdout(), p)

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the pack as JSON")

	return cmd
}

func describe(w io.Writer, p *entity.PackPreview) {
	fmt.Fprintf(w, "%s (%s)\n", p.Title, p.Identifier)

	types := make([]string, 0, len(p.Types))
	for t, n := range p.Types {
		types = append(types, fmt.Sprintf("%d %s", n, t))
	}
	sort.Strings(types)

	fmt.Fprintf(w, "%d stickers", p.ItemCount)
	if len(types) > 0 {
		fmt.Fprintf(w, ": %s", strings.Join(types, ", "))
	}
	fmt.Fprintf(w, "\n%d previews\n", p.Previews)

	if text := plainText(p.Description); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
}

// plainText drops the markup of a rendered description.
func plainText(s string) string {
	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}
