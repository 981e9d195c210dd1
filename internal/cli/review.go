package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/digest"
	"github.com/ppiankov/feedherald/internal/review"
	"github.com/ppiankov/feedherald/internal/store"
)

var (
	reviewCheck   bool
	reviewNoColor bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending reports and queue them as posts",
	RunE:  reviewAction,
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewCheck, "check", false, "poll all sources before reviewing")
	reviewCmd.Flags().BoolVar(&reviewNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(reviewCmd)
}

func reviewAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if reviewCheck {
		runners, _, err := a.runners(nil)
		if err != nil {
			return err
		}
		for _, r := range runners {
			if _, err := a.collect(ctx, r); err != nil {
				return fmt.Errorf("%s: %w", r.Name(), err)
			}
		}
	}

	batch, err := a.db.Reports(ctx, store.StatusPending)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		fmt.Fprintln(a.out, "No reports pending.")
		return nil
	}

	chans, _, err := a.channels(ctx, nil)
	if err != nil {
		return err
	}
	queues := make([]review.Queue, len(chans))
	for i, ch := range chans {
		queues[i] = ch
	}
	redactor, err := a.redactor()
	if err != nil {
		return err
	}

	session, err := review.NewSession(batch, a.db, queues, review.Options{
		In:        cmd.InOrStdin(),
		Out:       a.out,
		Formatter: digest.NewTerminal(a.cfg.Review.Color && !reviewNoColor),
		Redactor:  redactor,
		Log:       a.log,
	})
	if err != nil {
		return err
	}
	return session.Run(ctx)
}
