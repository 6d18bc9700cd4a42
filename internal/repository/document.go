package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/staybook/hotel-server-go/internal/model"
)

// DocumentRepository stores relation rows as JSONB. Queries are equality
// predicates over data fields, with userId served from the owner_id column.
type DocumentRepository interface {
	Query(ctx context.Context, collection string, filters []model.Filter) ([]model.Document, error)
	FindByID(ctx context.Context, collection, id string) (*model.Document, error)
	Create(ctx context.Context, collection, ownerID string, data map[string]any) (*model.Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

type documentRow struct {
	ID         string    `db:"id"`
	Collection string    `db:"collection"`
	OwnerID    string    `db:"owner_id"`
	Data       []byte    `db:"data"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r documentRow) toModel() (model.Document, error) {
	doc := model.Document{
		ID:         r.ID,
		Collection: r.Collection,
		OwnerID:    r.OwnerID,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal(r.Data, &doc.Data); err != nil {
		return model.Document{}, fmt.Errorf("decode document %s: %w", r.ID, err)
	}
	return doc, nil
}

var documentColumns = []any{"id", "collection", "owner_id", "data", "created_at"}

type documentRepo struct {
	db      sqlxDB
	dialect goqu.DialectWrapper
	now     func() time.Time
}

func NewDocumentRepository(db *sqlx.DB) DocumentRepository {
	return &documentRepo{db: db, dialect: goqu.Dialect("postgres"), now: time.Now}
}

func (r *documentRepo) Query(ctx context.Context, collection string, filters []model.Filter) ([]model.Document, error) {
	ds := r.dialect.From("documents").
		Select(documentColumns...).
		Where(goqu.C("collection").Eq(collection))
	for _, f := range filters {
		if f.Field == model.FieldUserID {
			ds = ds.Where(goqu.C("owner_id").Eq(f.Value))
			continue
		}
		ds = ds.Where(goqu.L("data->>?", f.Field).Eq(f.Value))
	}
	query, args, err := ds.Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build document query: %w", err)
	}

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	docs := make([]model.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *documentRepo) FindByID(ctx context.Context, collection, id string) (*model.Document, error) {
	query, args, err := r.dialect.From("documents").
		Select(documentColumns...).
		Where(goqu.C("collection").Eq(collection), goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build document lookup: %w", err)
	}

	var row documentRow
	found, err := HandleNotFound(&row, r.db.GetContext(ctx, &row, query, args...))
	if err != nil || found == nil {
		return nil, err
	}
	doc, err := found.toModel()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) Create(ctx context.Context, collection, ownerID string, data map[string]any) (*model.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	row := documentRow{
		ID:         uuid.NewString(),
		Collection: collection,
		OwnerID:    ownerID,
		Data:       raw,
		CreatedAt:  r.now().UTC(),
	}
	query, args, err := r.dialect.Insert("documents").Rows(goqu.Record{
		"id":         row.ID,
		"collection": row.Collection,
		"owner_id":   row.OwnerID,
		"data":       string(row.Data),
		"created_at": row.CreatedAt,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build document insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}

	doc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) Delete(ctx context.Context, collection, id string) (bool, error) {
	query, args, err := r.dialect.Delete("documents").
		Where(goqu.C("collection").Eq(collection), goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build document delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
