package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/config"
	"github.com/ppiankov/feedherald/internal/source"
	"github.com/ppiankov/feedherald/internal/store"
	"github.com/ppiankov/feedherald/internal/watermark"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, storage and channel health",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(out, false, "config directory %s", configDir)
		return fmt.Errorf("config directory not found (run feedherald init)")
	}
	printCheck(out, true, "config directory %s", configDir)

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(out, false, "config: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(out, true, "config: %d sources, %d channels", len(cfg.Sources), len(cfg.Channels))
	if len(cfg.Channels) == 0 {
		printInfo(out, "no channels: published reports will have nowhere to go")
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(out, false, "store: %v", err)
		return fmt.Errorf("some checks failed")
	}
	defer func() { _ = db.Close() }()
	printCheck(out, true, "store %s", cfg.Storage.Path)

	ctx := cmd.Context()
	for _, sc := range cfg.Sources {
		wm, found, err := db.LoadWatermark(ctx, sc.Name, sourceKind(sc.Kind))
		switch {
		case err != nil:
			printCheck(out, false, "source %s: %v", sc.Name, err)
			ok = false
		case !found:
			printInfo(out, "source %s: never checked", sc.Name)
		default:
			printCheck(out, true, "source %s: checked through %s", sc.Name, humanize.Time(wm.LastChecked))
		}
	}

	pending, err := db.Reports(ctx, store.StatusPending)
	if err != nil {
		printCheck(out, false, "reports: %v", err)
		ok = false
	} else {
		printCheck(out, true, "reports: %d pending review", len(pending))
	}

	depths, err := db.QueueDepths(ctx)
	if err != nil {
		printCheck(out, false, "queues: %v", err)
		ok = false
	} else {
		checkQueues(ctx, out, db, cfg, depths)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

func checkQueues(ctx context.Context, out io.Writer, db *store.Store, cfg *config.Config, depths map[string]int) {
	configured := make(map[string]bool, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		configured[cc.Name] = true
	}

	names := make([]string, 0, len(depths))
	for name := range depths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !configured[name] {
			printInfo(out, "orphaned queue: %s holds %d posts but is not configured", name, depths[name])
		}
	}

	for _, cc := range cfg.Channels {
		last := "never sent"
		if sent, err := db.SentPosts(ctx, cc.Name, 1); err == nil && len(sent) > 0 {
			last = "last sent " + humanize.Time(sent[0].SentAt)
		}
		printCheck(out, true, "channel %s: %d queued, %s", cc.Name, depths[cc.Name], last)
	}
}

// sourceKind maps a configured source kind to the watermark it persists.
func sourceKind(kind string) watermark.Kind {
	switch kind {
	case source.KindPleiades:
		return watermark.KindSeenSet
	case source.KindZotero:
		return watermark.KindVersion
	}
	return watermark.KindTimestamp
}

func printCheck(out io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(out, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
