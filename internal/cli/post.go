package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var postCount int

var postCmd = &cobra.Command{
	Use:   "post [channel...]",
	Short: "Send the next queued posts",
	Long:  "post pops the head of each channel queue and sends it. --count overrides the channel's configured batch size.",
	RunE:  postAction,
}

func init() {
	postCmd.Flags().IntVarP(&postCount, "count", "n", 0, "posts to send per channel (default: channel batch)")
	rootCmd.AddCommand(postCmd)
}

func postAction(cmd *cobra.Command, args []string) error {
	if postCount < 0 {
		return fmt.Errorf("--count must not be negative")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	chans, configs, err := a.channels(ctx, args)
	if err != nil {
		return err
	}

	failed := 0
	for i, ch := range chans {
		count := postCount
		if count == 0 {
			count = configs[i].Batch
		}
		res, err := ch.PostNext(ctx, count)
		if err != nil {
			return err
		}
		for _, e := range res.Errors {
			fmt.Fprintf(a.out, "warning: %s: %v\n", ch.Name(), e)
		}
		failed += len(res.Failed)
		fmt.Fprintf(a.out, "%s: sent %d, failed %d, %d left\n", ch.Name(), len(res.Sent), len(res.Failed), ch.Len())
	}
	if failed > 0 {
		return fmt.Errorf("%d post(s) failed", failed)
	}
	return nil
}
