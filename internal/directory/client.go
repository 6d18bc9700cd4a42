// Package directory reads hotel listings from the remote hotel directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/staybook/hotel-server-go/internal/config"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

const maxListingBytes = 8 << 20

// Client fetches GET {baseURL}/hotels behind a circuit breaker and keeps every
// listed hotel in an expiring cache for GetHotel. IDs missing from a fresh
// listing are remembered for config.DirectoryMissTTL.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   *expirable.LRU[string, model.Hotel]
	misses  *expirable.LRU[string, struct{}]
}

func NewClient(baseURL string, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: config.DirectoryRequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "hotel-directory",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A caller hanging up says nothing about the directory's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
		cache:  expirable.NewLRU[string, model.Hotel](config.DirectoryCacheSize, nil, cacheTTL),
		misses: expirable.NewLRU[string, struct{}](config.DirectoryCacheSize, nil, config.DirectoryMissTTL),
	}
}

// ListHotels returns the directory's hotels in listing order.
func (c *Client) ListHotels(ctx context.Context) ([]model.Hotel, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeDirectoryUnavailable) {
			return nil, err
		}
		return nil, apperrors.DirectoryUnavailable(err)
	}

	hotels := result.([]model.Hotel)
	for _, h := range hotels {
		c.cache.Add(h.ID, h)
	}
	return hotels, nil
}

// GetHotel serves a hotel from the cache, refreshing the listing on a miss.
// An ID the last refresh did not list is not found until its miss expires.
func (c *Client) GetHotel(ctx context.Context, id string) (*model.Hotel, error) {
	if h, ok := c.cache.Get(id); ok {
		return &h, nil
	}
	if _, ok := c.misses.Get(id); ok {
		return nil, apperrors.NotFound("Hotel")
	}
	if _, err := c.ListHotels(ctx); err != nil {
		return nil, err
	}
	if h, ok := c.cache.Get(id); ok {
		return &h, nil
	}
	c.misses.Add(id, struct{}{})
	return nil, apperrors.NotFound("Hotel")
}

func (c *Client) fetch(ctx context.Context) ([]model.Hotel, error) {
	url := c.baseURL + "/hotels"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("url", url).Dur("elapsed", elapsed).Msg("hotel directory request error")
		return nil, apperrors.DirectoryUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("url", url).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("hotel directory request failed")
		return nil, apperrors.DirectoryUnavailable(fmt.Errorf("directory returned status %d", resp.StatusCode))
	}

	var listing []model.Hotel
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListingBytes)).Decode(&listing); err != nil {
		log.Error().Err(err).Str("url", url).Msg("undecodable hotel listing")
		return nil, apperrors.DirectoryUnavailable(fmt.Errorf("decode listing: %w", err))
	}

	hotels := make([]model.Hotel, 0, len(listing))
	for _, h := range listing {
		if h.ID == "" {
			log.Warn().Str("name", h.Name).Msg("skipping hotel without id")
			continue
		}
		hotels = append(hotels, h)
	}

	log.Debug().Str("url", url).Int("count", len(hotels)).Dur("elapsed", elapsed).Msg("hotel listing fetched")
	return hotels, nil
}
