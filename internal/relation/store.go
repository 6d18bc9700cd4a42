// Package relation is the client-side contract for the document store that
// holds favorites and reservations.
package relation

import (
	"context"

	"github.com/staybook/hotel-server-go/internal/model"
)

// Store is a set of named collections queryable by equality predicates.
type Store interface {
	Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error)
	Insert(ctx context.Context, collection string, data map[string]any) (string, error)
	Delete(ctx context.Context, collection, id string) error
	// Subscribe pushes the full matching row set to fn once on subscribe and
	// again after every change. fn is never called after unsubscribe returns.
	Subscribe(ctx context.Context, collection string, filters []model.Filter, fn SnapshotFunc) (unsubscribe func(), err error)
}

type SnapshotFunc func(docs []model.Document)

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	Token() string
}
