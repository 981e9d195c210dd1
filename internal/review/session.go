// Package review runs the interactive prompt over a batch of pending
// reports: list, preview, publish to channel queues, dismiss.
package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/channel"
	"github.com/ppiankov/feedherald/internal/digest"
	"github.com/ppiankov/feedherald/internal/privacy"
	"github.com/ppiankov/feedherald/internal/store"
)

const helpText = `Commands:
  list                  show the batch again
  preview <range>       show posts as they would be sent
  publish <range>       queue posts on every channel (alias: post)
  publish! <range>      queue posts ahead of what is already waiting
  dismiss <range>       drop reports without posting
  help                  show this help
  quit                  leave the prompt (alias: q, exit)
A range is a comma-separated list of positions or spans, e.g. 1,3-5.`

// StatusStore records review decisions.
type StatusStore interface {
	SetReportStatus(ctx context.Context, status string, ids ...int64) error
}

// Queue accepts posts for later dissemination.
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, posts []channel.Post, prioritize bool) error
}

type Options struct {
	In        io.Reader
	Out       io.Writer
	Formatter digest.Formatter
	Redactor  *privacy.Redactor
	Now       func() time.Time
	Log       logrus.FieldLogger
}

// Session holds one batch under review. Positions are 1-based and stay
// fixed for the life of the session.
type Session struct {
	batch  []store.ReportRecord
	state  []string
	store  StatusStore
	queues []Queue
	opts   Options
	log    logrus.FieldLogger
}

func NewSession(batch []store.ReportRecord, st StatusStore, queues []Queue, opts Options) (*Session, error) {
	if st == nil {
		return nil, errors.New("review: status store is required")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("review: input and output are required")
	}
	if opts.Formatter == nil {
		opts.Formatter = digest.NewTerminal(false)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	state := make([]string, len(batch))
	for i, rec := range batch {
		state[i] = rec.Status
	}
	return &Session{batch: batch, state: state, store: st, queues: queues, opts: opts, log: log}, nil
}

// Run lists the batch and reads commands until quit, end of input, or ctx
// is cancelled. Command errors are printed and the prompt continues.
func (s *Session) Run(ctx context.Context) error {
	if err := s.list(); err != nil {
		return err
	}
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.opts.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.opts.Out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.opts.Out)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.opts.Out)
				return nil
			}
			quit, err := s.Exec(ctx, line)
			if err != nil {
				fmt.Fprintf(s.opts.Out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "quit", "q", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.opts.Out, helpText)
		return false, nil
	case "list", "ls":
		return false, s.list()
	case "preview":
		return false, s.preview(arg)
	case "publish", "post":
		return false, s.publish(ctx, arg, false)
	case "publish!", "post!":
		return false, s.publish(ctx, arg, true)
	case "dismiss":
		return false, s.dismiss(ctx, arg)
	}
	return false, fmt.Errorf("unknown command %q (try help)", cmd)
}

func (s *Session) list() error {
	return s.opts.Formatter.Format(s.opts.Out, digest.Input{
		Items: digest.Number(s.batch),
		Now:   s.opts.Now(),
	})
}

// selection resolves a range against the batch.
func (s *Session) selection(arg string) ([]int, error) {
	positions, err := ParseRange(arg)
	if err != nil {
		return nil, err
	}
	for _, n := range positions {
		if n > len(s.batch) {
			return nil, fmt.Errorf("%w: %d is past the end of the batch (%d)", ErrBadRange, n, len(s.batch))
		}
	}
	return positions, nil
}

func (s *Session) post(n int) (channel.Post, error) {
	r, err := s.batch[n-1].Report()
	if err != nil {
		return channel.Post{}, err
	}
	p, err := channel.FromReport(r)
	if err != nil {
		return channel.Post{}, fmt.Errorf("report %d: %w", n, err)
	}
	p.Body = s.opts.Redactor.Apply(p.Body)
	return p, nil
}

func (s *Session) preview(arg string) error {
	positions, err := s.selection(arg)
	if err != nil {
		return err
	}
	for _, n := range positions {
		p, err := s.post(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.opts.Out, "--- [%d] %s ---\n%s\n\n", n, s.batch[n-1].Source, p.Serialize())
	}
	return nil
}

func (s *Session) publish(ctx context.Context, arg string, prioritize bool) error {
	positions, err := s.selection(arg)
	if err != nil {
		return err
	}
	if len(s.queues) == 0 {
		return errors.New("no channels configured")
	}

	var (
		posts []channel.Post
		ids   []int64
		took  []int
	)
	for _, n := range positions {
		if st := s.state[n-1]; st != store.StatusPending {
			fmt.Fprintf(s.opts.Out, "[%d] already %s, skipped\n", n, st)
			continue
		}
		p, err := s.post(n)
		if err != nil {
			return err
		}
		posts = append(posts, p)
		ids = append(ids, s.batch[n-1].ID)
		took = append(took, n)
	}
	if len(posts) == 0 {
		return nil
	}

	for _, q := range s.queues {
		if err := q.Enqueue(ctx, posts, prioritize); err != nil {
			return fmt.Errorf("queue on %s: %w", q.Name(), err)
		}
	}
	if err := s.store.SetReportStatus(ctx, store.StatusPublished, ids...); err != nil {
		return err
	}
	for _, n := range took {
		s.state[n-1] = store.StatusPublished
	}
	s.log.WithFields(logrus.Fields{"count": len(posts), "channels": len(s.queues)}).Info("reports published")
	fmt.Fprintf(s.opts.Out, "queued %d post(s) on %d channel(s)\n", len(posts), len(s.queues))
	return nil
}

func (s *Session) dismiss(ctx context.Context, arg string) error {
	positions, err := s.selection(arg)
	if err != nil {
		return err
	}
	var ids []int64
	var took []int
	for _, n := range positions {
		if s.state[n-1] != store.StatusPending {
			continue
		}
		ids = append(ids, s.batch[n-1].ID)
		took = append(took, n)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.SetReportStatus(ctx, store.StatusDismissed, ids...); err != nil {
		return err
	}
	for _, n := range took {
		s.state[n-1] = store.StatusDismissed
	}
	fmt.Fprintf(s.opts.Out, "dismissed %d report(s)\n", len(ids))
	return nil
}
