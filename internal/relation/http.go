package relation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/apiclient"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

const (
	snapshotEvent  = "snapshot"
	streamRetryMin = time.Second
	streamRetryMax = 30 * time.Second
)

// HTTPStore is the Store backed by the server's /v1/collections API. Live
// queries are server-sent event streams that reconnect with backoff until
// unsubscribed.
type HTTPStore struct {
	api    *apiclient.Client
	tokens TokenSource
}

var _ Store = (*HTTPStore)(nil)

func NewHTTPStore(api *apiclient.Client, tokens TokenSource) *HTTPStore {
	return &HTTPStore{api: api, tokens: tokens}
}

type queryRequest struct {
	Filters []model.Filter `json:"filters"`
}

type documentsResponse struct {
	Documents []model.Document `json:"documents"`
}

type insertRequest struct {
	Data map[string]any `json:"data"`
}

type insertResponse struct {
	ID string `json:"id"`
}

func (s *HTTPStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	var resp documentsResponse
	err := s.api.Do(ctx, http.MethodPost, collectionPath(collection)+"/query", s.tokens.Token(),
		queryRequest{Filters: filters}, &resp)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return resp.Documents, nil
}

func (s *HTTPStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	var resp insertResponse
	err := s.api.Do(ctx, http.MethodPost, collectionPath(collection)+"/documents", s.tokens.Token(),
		insertRequest{Data: data}, &resp)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return resp.ID, nil
}

func (s *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	path := collectionPath(collection) + "/documents/" + url.PathEscape(id)
	if err := s.api.Do(ctx, http.MethodDelete, path, s.tokens.Token(), nil, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// Subscribe returns once the stream is established. The stream lives until
// unsubscribe is called or ctx is cancelled.
func (s *HTTPStore) Subscribe(ctx context.Context, collection string, filters []model.Filter, fn SnapshotFunc) (func(), error) {
	path := eventsPath(collection, filters)

	streamCtx, cancel := context.WithCancel(ctx)
	// Only establishing the stream is bounded; the stream itself is long lived.
	timer := time.AfterFunc(s.api.Timeout(), cancel)
	body, err := s.api.OpenStream(streamCtx, path, s.tokens.Token())
	if !timer.Stop() {
		if body != nil {
			body.Close()
		}
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", collection, apperrors.BackendUnavailable(context.DeadlineExceeded))
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", collection, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.follow(streamCtx, path, body, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *HTTPStore) follow(ctx context.Context, path string, body io.ReadCloser, fn SnapshotFunc) {
	delay := streamRetryMin
	for {
		if body != nil {
			err := readEvents(body, func(eventType string, data []byte) {
				if eventType != snapshotEvent {
					return
				}
				var snap documentsResponse
				if err := json.Unmarshal(data, &snap); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("discarding undecodable snapshot")
					return
				}
				fn(snap.Documents)
			})
			body.Close()
			body = nil
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("path", path).Dur("retryIn", delay).Msg("relation stream dropped")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		next, err := s.api.OpenStream(ctx, path, s.tokens.Token())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = min(delay*2, streamRetryMax)
			log.Warn().Err(err).Str("path", path).Dur("retryIn", delay).Msg("relation stream reconnect failed")
			continue
		}
		body = next
		delay = streamRetryMin
	}
}

func collectionPath(collection string) string {
	return "/v1/collections/" + url.PathEscape(collection)
}

func eventsPath(collection string, filters []model.Filter) string {
	q := url.Values{}
	for _, f := range filters {
		q.Set(f.Field, f.Value)
	}
	return collectionPath(collection) + "/events?" + q.Encode()
}
