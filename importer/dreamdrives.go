package importer

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// DreamDrivesBooking is one booking of the Dream Drives feed. Each booking
// belongs to the flow named by its slug.
type DreamDrivesBooking struct {
	BookingID  flexString   `json:"booking_id"`
	Flow       string       `json:"flow"`
	Status     string       `json:"status"`
	Vehicle    string       `json:"vehicle"`
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	TotalCents int64        `json:"total_cents"`
	Currency   string       `json:"currency"`
	Customer   FeedCustomer `json:"customer"`
}

// DreamDrivesPage is a page of bookings and the cursor of the next one.
type DreamDrivesPage struct {
	Data       []DreamDrivesBooking `json:"data"`
	NextCursor string               `json:"next_cursor"`
}

// DreamDrivesConfig configures the Dream Drives bookings feed.
type DreamDrivesConfig struct {
	BaseURL string
	Token   string
	RPS     float64
	Burst   int
	Retry   RetryPolicy
}

// DreamDrivesClient reads bookings from the Dream Drives API.
type DreamDrivesClient struct {
	feed *feedClient
}

// NewDreamDrivesClient creates a Dream Drives client.
func NewDreamDrivesClient(cfg DreamDrivesConfig) (*DreamDrivesClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	feed, err := newFeedClient(cfg.BaseURL, header, cfg.RPS, cfg.Burst, cfg.Retry)
	if err != nil {
		return nil, err
	}
	return &DreamDrivesClient{feed: feed}, nil
}

// Bookings returns the bookings updated since the given time, starting at
// cursor (empty for the first page).
func (c *DreamDrivesClient) Bookings(ctx context.Context, updatedSince time.Time, cursor string) (*DreamDrivesPage, error) {
	q := url.Values{}
	if !updatedSince.IsZero() {
		q.Set("updated_since", updatedSince.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page DreamDrivesPage
	if err := c.feed.getJSON(ctx, "/v1/bookings", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
