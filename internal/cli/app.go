package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/channel"
	"github.com/ppiankov/feedherald/internal/config"
	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/logging"
	"github.com/ppiankov/feedherald/internal/privacy"
	"github.com/ppiankov/feedherald/internal/source"
	"github.com/ppiankov/feedherald/internal/store"
)

// app bundles what every command needs once the config is loaded.
type app struct {
	cfg *config.Config
	db  *store.Store
	log *logrus.Logger
	out io.Writer
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, db: db, log: log, out: cmd.OutOrStdout()}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) fetcher() (*fetch.Client, error) {
	h := a.cfg.HTTP
	return fetch.NewClient(fetch.Config{
		UserAgent:   h.UserAgent,
		From:        h.From,
		Timeout:     h.Timeout.Duration,
		MinInterval: h.MinInterval.Duration,
		MaxRetries:  h.MaxRetries,
		RetryDelay:  h.RetryDelay.Duration,
		CacheTTL:    h.CacheTTL.Duration,
	}, a.log)
}

// runners builds a runner per named source, or for every source when names
// is empty. All runners share one fetch client.
func (a *app) runners(names []string) ([]*source.Runner, []config.SourceConfig, error) {
	selected := a.cfg.Sources
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			sc, ok := a.cfg.Source(name)
			if !ok {
				return nil, nil, fmt.Errorf("unknown source %q", name)
			}
			selected = append(selected, sc)
		}
	}

	client, err := a.fetcher()
	if err != nil {
		return nil, nil, err
	}
	runners := make([]*source.Runner, 0, len(selected))
	for _, sc := range selected {
		adapter, err := source.New(sc.Kind, source.Options{
			Name:           sc.Name,
			URI:            sc.URI,
			Tags:           sc.Tags,
			MaxSeen:        sc.MaxSeen,
			DayGranularity: sc.DayGranular(),
			People:         sc.People,
			APIKey:         sc.APIKey,
			Log:            a.log,
		}, client)
		if err != nil {
			return nil, nil, err
		}
		runners = append(runners, source.NewRunner(adapter, a.db, a.log))
	}
	return runners, selected, nil
}

// collect runs one check and stores its reports. It returns how many were
// new to the store.
func (a *app) collect(ctx context.Context, r *source.Runner) (int, error) {
	reports, err := r.Check(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, rep := range reports {
		_, inserted, err := a.db.SaveReport(ctx, rep)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// channels builds and loads the named channels, or all when names is empty.
func (a *app) channels(ctx context.Context, names []string) ([]*channel.Channel, []config.ChannelConfig, error) {
	selected := a.cfg.Channels
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			cc, ok := a.cfg.Channel(name)
			if !ok {
				return nil, nil, fmt.Errorf("unknown channel %q", name)
			}
			selected = append(selected, cc)
		}
	}

	out := make([]*channel.Channel, 0, len(selected))
	for _, cc := range selected {
		sender, err := a.sender(cc)
		if err != nil {
			return nil, nil, err
		}
		ch, err := channel.New(channel.Options{
			Name:      cc.Name,
			Language:  cc.Language,
			OnFailure: channel.FailurePolicy(cc.OnSendFailure),
			Log:       a.log,
			Sent:      a.db,
		}, sender, a.db)
		if err != nil {
			return nil, nil, err
		}
		if err := ch.Load(ctx); err != nil {
			return nil, nil, err
		}
		out = append(out, ch)
	}
	return out, selected, nil
}

func (a *app) sender(cc config.ChannelConfig) (channel.Sender, error) {
	switch cc.Kind {
	case "gotosocial":
		return channel.NewGoToSocial(cc.Server, cc.AccessToken, cc.Visibility)
	case "stdout":
		return channel.NewWriter(a.out), nil
	}
	return nil, fmt.Errorf("channel %s: unknown kind %q", cc.Name, cc.Kind)
}

// redactor returns nil when redaction is off; a nil Redactor passes text
// through.
func (a *app) redactor() (*privacy.Redactor, error) {
	r := a.cfg.Privacy.Redact
	if !r.Enabled {
		return nil, nil
	}
	return privacy.New(r.Patterns, r.Placeholder)
}
