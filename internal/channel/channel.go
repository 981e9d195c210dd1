package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/metrics"
)

// FailurePolicy decides what happens to a post whose send failed.
type FailurePolicy string

const (
	// Drop consumes failed posts.
	Drop FailurePolicy = "drop"
	// Requeue puts failed posts back at the head of the queue.
	Requeue FailurePolicy = "requeue"
)

const DefaultLanguage = "en"

// Receipt confirms a sent post.
type Receipt struct {
	ID     string
	URL    string
	SentAt time.Time
}

// Sender disseminates rendered post text.
type Sender interface {
	Send(ctx context.Context, text, language string) (Receipt, error)
}

// Persister stores a channel's queue. SaveQueue replaces the whole queue.
type Persister interface {
	LoadQueue(ctx context.Context, channel string) ([]Post, error)
	SaveQueue(ctx context.Context, channel string, posts []Post) error
}

// SentLog records receipts of successful sends.
type SentLog interface {
	RecordSent(ctx context.Context, channel string, p Post, r Receipt) error
}

type Options struct {
	Name      string
	Language  string
	OnFailure FailurePolicy
	Log       logrus.FieldLogger
	Sent      SentLog
}

// Result summarizes one PostNext batch.
type Result struct {
	Sent   []Post
	Failed []Post
	Unsent []Post // not attempted before ctx was cancelled
	Errors []error
}

// Channel owns one durable queue. Index 0 is the head: it is popped next.
type Channel struct {
	name     string
	language string
	policy   FailurePolicy
	sender   Sender
	store    Persister
	sent     SentLog
	log      logrus.FieldLogger
	queue    []Post
}

// New validates opts and builds a channel with an empty in-memory queue;
// call Load to restore persisted state.
func New(opts Options, sender Sender, store Persister) (*Channel, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, errors.New("channel name is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel %s: sender is required", name)
	}
	if store == nil {
		return nil, fmt.Errorf("channel %s: queue store is required", name)
	}
	policy := opts.OnFailure
	switch policy {
	case "":
		policy = Drop
	case Drop, Requeue:
	default:
		return nil, fmt.Errorf("channel %s: unknown send failure policy %q", name, policy)
	}
	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Channel{
		name:     name,
		language: lang,
		policy:   policy,
		sender:   sender,
		store:    store,
		sent:     opts.Sent,
		log:      log.WithField("channel", name),
	}, nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Len() int { return len(c.queue) }

// Posts returns the queue in pop order.
func (c *Channel) Posts() []Post {
	out := make([]Post, len(c.queue))
	copy(out, c.queue)
	return out
}

// Load replaces the in-memory queue with the persisted one.
func (c *Channel) Load(ctx context.Context) error {
	posts, err := c.store.LoadQueue(ctx, c.name)
	if err != nil {
		return fmt.Errorf("load queue %s: %w", c.name, err)
	}
	c.queue = posts
	metrics.QueueDepth.WithLabelValues(c.name).Set(float64(len(c.queue)))
	return nil
}

// Enqueue adds posts at the tail, or at the head when prioritize is set.
// Prioritized posts keep their given order. The queue is persisted before
// Enqueue returns; on failure the in-memory queue is left unchanged.
func (c *Channel) Enqueue(ctx context.Context, posts []Post, prioritize bool) error {
	for i, p := range posts {
		if strings.TrimSpace(p.Body) == "" {
			return fmt.Errorf("post %d: %w", i, ErrEmptyPost)
		}
	}
	if len(posts) == 0 {
		return nil
	}

	next := make([]Post, 0, len(c.queue)+len(posts))
	if prioritize {
		next = append(next, posts...)
		next = append(next, c.queue...)
	} else {
		next = append(next, c.queue...)
		next = append(next, posts...)
	}
	if err := c.persist(ctx, next); err != nil {
		return err
	}
	c.queue = next
	c.log.WithFields(logrus.Fields{"count": len(posts), "priority": prioritize}).Info("posts queued")
	return nil
}

// PostNext pops up to count posts from the head and sends each in order.
// A failed send does not stop the batch; cancelling ctx does, and posts not
// yet attempted stay at the head. The queue is persisted once after the
// batch, even when ctx is cancelled; the returned error reports only that
// persistence.
func (c *Channel) PostNext(ctx context.Context, count int) (Result, error) {
	var res Result
	if count <= 0 || len(c.queue) == 0 {
		return res, nil
	}
	if count > len(c.queue) {
		count = len(c.queue)
	}

	batch := c.queue[:count]
	rest := c.queue[count:]
	for i, p := range batch {
		if err := ctx.Err(); err != nil {
			res.Unsent = batch[i:]
			res.Errors = append(res.Errors, err)
			break
		}
		if _, err := c.send(ctx, p); err != nil {
			res.Failed = append(res.Failed, p)
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Sent = append(res.Sent, p)
	}

	next := make([]Post, 0, len(c.queue)-len(res.Sent))
	if c.policy == Requeue {
		next = append(next, res.Failed...)
	}
	next = append(next, res.Unsent...)
	next = append(next, rest...)
	if err := c.persist(context.WithoutCancel(ctx), next); err != nil {
		c.queue = next
		return res, err
	}
	c.queue = next
	return res, nil
}

// PostNow sends p immediately, bypassing the queue.
func (c *Channel) PostNow(ctx context.Context, p Post) (Receipt, error) {
	if strings.TrimSpace(p.Body) == "" {
		return Receipt{}, ErrEmptyPost
	}
	return c.send(ctx, p)
}

// Preview returns the text that would be sent for p.
func (c *Channel) Preview(p Post) string {
	return p.Serialize()
}

// Clear empties the queue.
func (c *Channel) Clear(ctx context.Context) error {
	if err := c.persist(ctx, nil); err != nil {
		return err
	}
	c.queue = nil
	c.log.Info("queue cleared")
	return nil
}

func (c *Channel) send(ctx context.Context, p Post) (Receipt, error) {
	receipt, err := c.sender.Send(ctx, p.Serialize(), c.language)
	if err != nil {
		metrics.PostsSent.WithLabelValues(c.name, "failed").Inc()
		c.log.WithError(err).WithField("post", p.ID).Warn("send failed")
		return Receipt{}, fmt.Errorf("send post %s: %w", p.ID, err)
	}
	metrics.PostsSent.WithLabelValues(c.name, "sent").Inc()
	c.log.WithFields(logrus.Fields{"post": p.ID, "status": receipt.ID}).Info("post sent")
	if c.sent != nil {
		if err := c.sent.RecordSent(context.WithoutCancel(ctx), c.name, p, receipt); err != nil {
			c.log.WithError(err).Warn("record sent post")
		}
	}
	return receipt, nil
}

func (c *Channel) persist(ctx context.Context, posts []Post) error {
	if err := c.store.SaveQueue(ctx, c.name, posts); err != nil {
		return fmt.Errorf("save queue %s: %w", c.name, err)
	}
	metrics.QueueDepth.WithLabelValues(c.name).Set(float64(len(posts)))
	return nil
}
