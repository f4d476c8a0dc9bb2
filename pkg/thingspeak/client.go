// Package thingspeak reads the latest sample from a ThingSpeak channel feed.
package thingspeak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"cowly/pkg/domain"
)

const DefaultBaseURL = "https://api.thingspeak.com"

var (
	ErrEmptyFeed    = errors.New("thingspeak feed has no entries")
	ErrInvalidEntry = errors.New("invalid thingspeak entry")
)

// Entry is one parsed feed sample.
type Entry struct {
	// CreatedAt is the feed's timestamp exactly as sent.
	CreatedAt string
	Reading   domain.Reading
}

// Key is the storage key for the entry: created_at with ':' replaced by '-'.
func (e Entry) Key() string {
	return strings.ReplaceAll(e.CreatedAt, ":", "-")
}

// Client calls the ThingSpeak read API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the provided base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Latest fetches the most recent entry of a channel.
func (c *Client) Latest(ctx context.Context, channelID, apiKey string) (Entry, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/feeds.json?%s", c.baseURL, url.PathEscape(channelID), url.Values{
		"api_key": {apiKey},
		"results": {"1"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Entry{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Entry{}, fmt.Errorf("fetch channel %s: status %d: %s", channelID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Feeds []map[string]any `json:"feeds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Entry{}, fmt.Errorf("decode channel %s: %w", channelID, err)
	}
	if len(payload.Feeds) == 0 {
		return Entry{}, ErrEmptyFeed
	}
	return ParseEntry(payload.Feeds[len(payload.Feeds)-1])
}

// ParseEntry maps a raw feed entry onto a reading. field1 is temperature,
// field2-4 the accelerometer and field5-7 the gyroscope; all are required.
func ParseEntry(feed map[string]any) (Entry, error) {
	var values [7]float64
	for i := range values {
		name := "field" + strconv.Itoa(i+1)
		v, err := fieldValue(feed[name])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, name, err)
		}
		values[i] = v
	}
	createdAt, _ := feed["created_at"].(string)
	if createdAt == "" {
		return Entry{}, fmt.Errorf("%w: created_at missing", ErrInvalidEntry)
	}
	ts, err := iso8601.ParseString(createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: created_at: %v", ErrInvalidEntry, err)
	}
	return Entry{
		CreatedAt: createdAt,
		Reading: domain.Reading{
			Temperature:   values[0],
			Accelerometer: domain.Vector3{X: values[1], Y: values[2], Z: values[3]},
			Gyroscope:     domain.Vector3{X: values[4], Y: values[5], Z: values[6]},
			Timestamp:     ts,
		},
	}, nil
}

func fieldValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, errors.New("missing or null")
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}
