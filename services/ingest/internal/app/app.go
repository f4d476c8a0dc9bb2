package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cowly/pkg/domain"
	"cowly/pkg/events"
	"cowly/pkg/store"
	"cowly/pkg/thingspeak"
)

// Status is the outcome of a feed's most recent poll.
type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// Feed binds a ThingSpeak channel to the cow whose readings it carries.
type Feed struct {
	ChannelID string
	APIKey    string
	UserID    string
	CowID     string
}

func (f Feed) name() string {
	return f.ChannelID + "/" + f.UserID + "/" + f.CowID
}

// FeedStatus tracks the last poll of one feed.
type FeedStatus struct {
	ChannelID    string    `json:"channelId"`
	UserID       string    `json:"userId"`
	CowID        string    `json:"cowId"`
	Status       Status    `json:"status"`
	LastKey      string    `json:"lastKey,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Publisher announces stored readings.
type Publisher interface {
	Publish(ctx context.Context, ev events.ReadingEvent) error
}

// Config holds runtime configuration.
type Config struct {
	DatabaseURL    string
	Documents      store.DocumentStore
	ThingSpeakURL  string
	HTTPClient     *http.Client
	Publisher      Publisher
	Feeds          []Feed
	Interval       time.Duration
	Concurrency    int
	RequestTimeout time.Duration
}

// App polls ThingSpeak feeds and stores each latest sample as a reading.
type App struct {
	docs        store.DocumentStore
	client      *thingspeak.Client
	publisher   Publisher
	feeds       []Feed
	interval    time.Duration
	concurrency int
	timeout     time.Duration

	mu     sync.Mutex
	status map[string]FeedStatus
}

// New constructs the poller, opening the Postgres store unless one is given.
func New(cfg Config) (*App, error) {
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("at least one feed is required")
	}
	feeds := make([]Feed, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		f.CowID = domain.NormalizeCowID(f.CowID)
		if !domain.ValidCowID(f.CowID) {
			return nil, fmt.Errorf("feed %s: invalid cow id", f.ChannelID)
		}
		feeds[i] = f
	}
	docs := cfg.Documents
	if docs == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		docs = gormStore
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a := &App{
		docs:        docs,
		client:      thingspeak.NewClient(cfg.ThingSpeakURL, cfg.HTTPClient),
		publisher:   cfg.Publisher,
		feeds:       feeds,
		interval:    interval,
		concurrency: concurrency,
		timeout:     timeout,
		status:      make(map[string]FeedStatus, len(feeds)),
	}
	for _, f := range feeds {
		a.status[f.name()] = FeedStatus{ChannelID: f.ChannelID, UserID: f.UserID, CowID: f.CowID, Status: StatusPending}
	}
	return a, nil
}

// Run polls once immediately and then every interval until ctx ends.
func (a *App) Run(ctx context.Context) error {
	slog.Info("ingest poller started", "feeds", len(a.feeds), "interval", a.interval.String())
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		ok, failed := a.PollOnce(ctx)
		slog.Info("ingest poll finished", "ok", ok, "failed", failed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce polls every feed concurrently. A failing feed is logged and
// recorded; it never stops the others.
func (a *App) PollOnce(ctx context.Context) (ok, failed int) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, feed := range a.feeds {
		g.Go(func() error {
			err := a.pollFeed(gctx, feed)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				ok++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ok, failed
}

func (a *App) pollFeed(ctx context.Context, feed Feed) error {
	logger := slog.With("channel_id", feed.ChannelID, "user_id", feed.UserID, "cow_id", feed.CowID)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	entry, err := a.client.Latest(ctx, feed.ChannelID, feed.APIKey)
	if err != nil {
		logger.Error("fetch thingspeak feed failed", "err", err)
		a.record(feed, "", err)
		return err
	}
	key := entry.Key()
	if err := a.docs.Set(ctx, store.ReadingPath(feed.UserID, feed.CowID, key), entry.Reading); err != nil {
		logger.Error("store reading failed", "key", key, "err", err)
		a.record(feed, "", err)
		return err
	}
	logger.Info("reading stored", "key", key, "temperature", entry.Reading.Temperature)
	a.record(feed, key, nil)

	if a.publisher != nil {
		ev := events.ReadingEvent{UserID: feed.UserID, CowID: feed.CowID, Key: key, Reading: entry.Reading}
		if err := a.publisher.Publish(ctx, ev); err != nil {
			logger.Warn("publish reading event failed", "key", key, "err", err)
		}
	}
	return nil
}

func (a *App) record(feed Feed, key string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status[feed.name()]
	st.UpdatedAt = time.Now().UTC()
	if err != nil {
		st.Status = StatusFailed
		st.ErrorMessage = err.Error()
	} else {
		st.Status = StatusOK
		st.ErrorMessage = ""
	}
	if key != "" {
		st.LastKey = key
	}
	a.status[feed.name()] = st
}

// Statuses returns the per-feed poll state ordered by channel.
func (a *App) Statuses() []FeedStatus {
	a.mu.Lock()
	out := make([]FeedStatus, 0, len(a.status))
	for _, st := range a.status {
		out = append(out, st)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		ki := out[i].ChannelID + "/" + out[i].UserID + "/" + out[i].CowID
		kj := out[j].ChannelID + "/" + out[j].UserID + "/" + out[j].CowID
		return strings.Compare(ki, kj) < 0
	})
	return out
}
