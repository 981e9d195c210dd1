package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/digest"
	"github.com/ppiankov/feedherald/internal/store"
)

var (
	reportsStatus  string
	reportsFormat  string
	reportsSource  string
	reportsNoColor bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored reports",
	RunE:  reportsAction,
}

func init() {
	reportsCmd.Flags().StringVar(&reportsStatus, "status", store.StatusPending, "report status: pending, published, dismissed, all")
	reportsCmd.Flags().StringVar(&reportsFormat, "format", "terminal", "output format: terminal, markdown, json")
	reportsCmd.Flags().StringVar(&reportsSource, "source", "", "only reports from this source")
	reportsCmd.Flags().BoolVar(&reportsNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(reportsCmd)
}

func reportsAction(cmd *cobra.Command, _ []string) error {
	formatter, err := newFormatter(reportsFormat, !reportsNoColor)
	if err != nil {
		return err
	}
	status := reportsStatus
	switch status {
	case "all":
		status = ""
	case store.StatusPending, store.StatusPublished, store.StatusDismissed:
	default:
		return fmt.Errorf("unknown status %q (want pending, published, dismissed or all)", reportsStatus)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	records, err := a.db.Reports(cmd.Context(), status)
	if err != nil {
		return err
	}
	if reportsSource != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Source == reportsSource {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	return formatter.Format(a.out, digest.Input{
		Items: digest.Number(records),
		Now:   time.Now(),
	})
}

func newFormatter(format string, color bool) (digest.Formatter, error) {
	switch format {
	case "terminal":
		return digest.NewTerminal(color), nil
	case "markdown":
		return digest.NewMarkdown(), nil
	case "json":
		return digest.NewJSON(), nil
	}
	return nil, fmt.Errorf("unknown format %q (want terminal, markdown or json)", format)
}
