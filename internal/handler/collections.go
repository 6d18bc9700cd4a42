package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/httputil"
	"github.com/staybook/hotel-server-go/internal/middleware"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/sse"
)

type DocumentStore interface {
	Query(ctx context.Context, callerID, collection string, filters []model.Filter) ([]model.Document, error)
	Create(ctx context.Context, callerID, collection string, data map[string]any) (*model.Document, error)
	Delete(ctx context.Context, callerID, collection, id string) error
	CheckSubscription(callerID, collection string, filters []model.Filter) error
}

// ChangeFeed delivers change notifications for an owner's rows. Subscribe
// returns once notifications are flowing.
type ChangeFeed interface {
	Subscribe(ctx context.Context, collection, ownerID string) (*sse.Client, error)
	Unsubscribe(client *sse.Client)
}

// CollectionsHandler serves /v1/collections. All routes expect an
// authenticated user in the request context.
type CollectionsHandler struct {
	docs      DocumentStore
	feed      ChangeFeed
	heartbeat time.Duration
}

func NewCollectionsHandler(docs DocumentStore, feed ChangeFeed) *CollectionsHandler {
	return &CollectionsHandler{
		docs:      docs,
		feed:      feed,
		heartbeat: sse.HeartbeatInterval,
	}
}

// Routes mounts the collection API. timeout bounds the request/response routes
// and writeLimit throttles writes; the event stream gets neither.
func (h *CollectionsHandler) Routes(timeout, writeLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/{collection}/events", h.Events)

	r.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Post("/{collection}/query", h.Query)
		r.With(writeLimit).Post("/{collection}/documents", h.CreateDocument)
		r.With(writeLimit).Delete("/{collection}/documents/{id}", h.DeleteDocument)
	})

	return r
}

type queryRequest struct {
	Filters []model.Filter `json:"filters"`
}

type documentsResponse struct {
	Documents []model.Document `json:"documents"`
}

type createRequest struct {
	Data map[string]any `json:"data"`
}

// POST /v1/collections/{collection}/query
func (h *CollectionsHandler) Query(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	collection := chi.URLParam(r, "collection")

	var req queryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	docs, err := h.docs.Query(r.Context(), user.ID, collection, req.Filters)
	if err != nil {
		logStoreError(err, "failed to query documents", user.ID, collection)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentsResponse{Documents: nonNil(docs)})
}

// POST /v1/collections/{collection}/documents
func (h *CollectionsHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	collection := chi.URLParam(r, "collection")

	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.docs.Create(r.Context(), user.ID, collection, req.Data)
	if err != nil {
		logStoreError(err, "failed to create document", user.ID, collection)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": doc.ID, "document": doc})
}

// DELETE /v1/collections/{collection}/documents/{id}
func (h *CollectionsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	collection := chi.URLParam(r, "collection")

	if err := h.docs.Delete(r.Context(), user.ID, collection, chi.URLParam(r, "id")); err != nil {
		logStoreError(err, "failed to delete document", user.ID, collection)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /v1/collections/{collection}/events?field=value
//
// Streams a snapshot of the matching rows on connect and after every change
// to the caller's rows in the collection.
func (h *CollectionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	collection := chi.URLParam(r, "collection")
	filters := filtersFromQuery(r)

	if err := h.docs.CheckSubscription(user.ID, collection, filters); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()

	// Subscribe before the initial query so no change can fall between them.
	client, err := h.feed.Subscribe(ctx, collection, user.ID)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Str("collection", collection).Msg("failed to subscribe to changes")
		writeError(w, apperrors.BackendUnavailable(err))
		return
	}
	defer h.feed.Unsubscribe(client)

	docs, err := h.docs.Query(ctx, user.ID, collection, filters)
	if err != nil {
		logStoreError(err, "failed to load initial snapshot", user.ID, collection)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.sendSnapshot(w, flusher, docs); err != nil {
		return
	}

	log.Info().
		Str("userId", user.ID).
		Str("collection", collection).
		Msg("sse connection established")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("userId", user.ID).
				Str("collection", collection).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("userId", user.ID).
				Str("collection", collection).
				Msg("sse connection closed by broker")
			return

		case <-client.Changes:
			docs, err := h.docs.Query(ctx, user.ID, collection, filters)
			if err != nil {
				// the next change or a reconnect resends the full set
				logStoreError(err, "failed to refresh snapshot", user.ID, collection)
				continue
			}
			if err := h.sendSnapshot(w, flusher, docs); err != nil {
				log.Debug().Err(err).Str("userId", user.ID).Msg("failed to send snapshot, closing connection")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("userId", user.ID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *CollectionsHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, docs []model.Document) error {
	data, err := json.Marshal(documentsResponse{Documents: nonNil(docs)})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// filtersFromQuery turns every query parameter except the auth token into an
// equality filter, in key order.
func filtersFromQuery(r *http.Request) []model.Filter {
	q := r.URL.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if k != "token" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	filters := make([]model.Filter, 0, len(keys))
	for _, k := range keys {
		filters = append(filters, model.Filter{Field: k, Value: q.Get(k)})
	}
	return filters
}

func nonNil(docs []model.Document) []model.Document {
	if docs == nil {
		return []model.Document{}
	}
	return docs
}

func logStoreError(err error, msg, userID, collection string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeDatabase, apperrors.ErrCodeInternal:
		log.Error().Err(err).Str("userId", userID).Str("collection", collection).Msg(msg)
	default:
		log.Debug().Err(err).Str("userId", userID).Str("collection", collection).Msg(msg)
	}
}
