package main

import (
	"os"

	"github.com/spf13/cobra"

	"omraudit/internal/adapters/terminal"
	"omraudit/internal/services/review"
)

func newReviewCmd(a *app) *cobra.Command {
	var (
		batch string
		first int
	)
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Open the interactive review console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			restore, err := terminal.EnterRaw(os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			defer restore()

			ctx := cmd.Context()
			toasts := terminal.NewToasts(a.clock)
			ctrl := review.New(a.audits, toasts, a.sink, review.Options{
				ListPageSize: a.cfg.ListPageSize,
				GridPageSize: a.cfg.GridPageSize,
				ResolveImage: func(ref string) string { return a.client.ImageURL(&ref) },
				Clock:        a.clock,
				Logger:       a.log,
			})
			if batch != "" {
				if err := ctrl.SetBatch(ctx, batch, first); err != nil {
					toasts.Error("Could not open the batch", err.Error())
				}
			}
			console := terminal.New(ctrl, terminal.Options{
				Toasts:    toasts,
				Uploader:  a.uploads,
				Templates: a.audits,
				Size:      terminal.SizeOf(os.Stdout),
				Clock:     a.clock,
				Logger:    a.log,
			})
			a.log.Info("review console started", "batch", batch)
			return console.Run(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "batch to open")
	cmd.Flags().IntVar(&first, "item", 0, "audit item to select first")
	return cmd
}
