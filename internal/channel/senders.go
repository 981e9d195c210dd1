package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-mastodon"
)

// GoToSocial posts statuses through the Mastodon client API that
// GoToSocial implements.
type GoToSocial struct {
	client     *mastodon.Client
	visibility string
}

// NewGoToSocial validates the server URL and token.
func NewGoToSocial(server, accessToken, visibility string) (*GoToSocial, error) {
	u, err := url.Parse(server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gotosocial: invalid server %q", server)
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("gotosocial: access token is required")
	}
	if visibility == "" {
		visibility = mastodon.VisibilityPublic
	}
	return &GoToSocial{
		client: mastodon.NewClient(&mastodon.Config{
			Server:      strings.TrimRight(server, "/"),
			AccessToken: accessToken,
		}),
		visibility: visibility,
	}, nil
}

func (g *GoToSocial) Send(ctx context.Context, text, language string) (Receipt, error) {
	status, err := g.client.PostStatus(ctx, &mastodon.Toot{
		Status:     text,
		Language:   language,
		Visibility: g.visibility,
	})
	if err != nil {
		return Receipt{}, err
	}
	sentAt := status.CreatedAt.UTC()
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	return Receipt{ID: string(status.ID), URL: status.URL, SentAt: sentAt}, nil
}

// Writer "sends" posts by printing them, for dry runs.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Send(_ context.Context, text, language string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "--- [%s]\n%s\n", language, text); err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: uuid.NewString(), SentAt: time.Now().UTC()}, nil
}
