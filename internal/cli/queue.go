package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/report"
)

var queueVerbose bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear channel queues",
}

var queueListCmd = &cobra.Command{
	Use:   "list [channel...]",
	Short: "Show queued posts per channel",
	RunE:  queueListAction,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear <channel>...",
	Short: "Drop every queued post of the named channels",
	Args:  cobra.MinimumNArgs(1),
	RunE:  queueClearAction,
}

func init() {
	queueListCmd.Flags().BoolVarP(&queueVerbose, "verbose", "v", false, "show each queued post")
	queueCmd.AddCommand(queueListCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

func queueListAction(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	chans, _, err := a.channels(cmd.Context(), args)
	if err != nil {
		return err
	}
	if len(chans) == 0 {
		fmt.Fprintln(a.out, "No channels configured.")
		return nil
	}
	for _, ch := range chans {
		fmt.Fprintf(a.out, "%s: %d queued\n", ch.Name(), ch.Len())
		if !queueVerbose {
			continue
		}
		for i, p := range ch.Posts() {
			first, _, _ := strings.Cut(p.Body, "\n")
			fmt.Fprintf(a.out, "  %d. %s (%s)\n", i+1, report.Lead(first, 72), humanize.Time(p.CreatedAt))
		}
	}
	return nil
}

func queueClearAction(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	chans, _, err := a.channels(cmd.Context(), args)
	if err != nil {
		return err
	}
	for _, ch := range chans {
		n := ch.Len()
		if err := ch.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: cleared %d post(s)\n", ch.Name(), n)
	}
	return nil
}
