package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/staybook/hotel-server-go/internal/audit"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/observability"
	"github.com/staybook/hotel-server-go/internal/repository"
	"github.com/staybook/hotel-server-go/internal/util"
)

// Notifier announces that the rows of one owner in one collection changed.
type Notifier interface {
	Publish(ctx context.Context, collection, ownerID string) error
}

// DocumentService serves relation rows to their owners. Every row and every
// query is scoped to the caller through the userId field.
type DocumentService struct {
	repo     repository.DocumentRepository
	notifier Notifier
	tracer   trace.Tracer
}

func NewDocumentService(repo repository.DocumentRepository, notifier Notifier) *DocumentService {
	return &DocumentService{
		repo:     repo,
		notifier: notifier,
		tracer:   otel.Tracer("github.com/staybook/hotel-server-go/internal/service"),
	}
}

func (s *DocumentService) Query(ctx context.Context, callerID, collection string, filters []model.Filter) (docs []model.Document, err error) {
	ctx, span := s.start(ctx, "documents.Query", collection)
	defer func() { end(span, err) }()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkFilters(callerID, filters); err != nil {
		return nil, err
	}

	docs, err = s.repo.Query(ctx, collection, filters)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	span.SetAttributes(attribute.Int("documents.count", len(docs)))
	return docs, nil
}

func (s *DocumentService) Create(ctx context.Context, callerID, collection string, data map[string]any) (doc *model.Document, err error) {
	ctx, span := s.start(ctx, "documents.Create", collection)
	defer func() { end(span, err) }()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.MissingRequired("data")
	}
	owner, ok := data[model.FieldUserID].(string)
	if !ok || owner == "" {
		return nil, apperrors.MissingRequired(model.FieldUserID)
	}
	if owner != callerID {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventForbiddenAccess,
			UserID:  callerID,
			Details: map[string]interface{}{"collection": collection, "op": "create"},
		})
		return nil, apperrors.Forbidden("Documents can only be written for the signed-in user")
	}

	doc, err = s.repo.Create(ctx, collection, owner, data)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	s.publish(ctx, collection, owner)
	return doc, nil
}

// Delete removes a row owned by the caller. Rows of other users are reported
// as missing.
func (s *DocumentService) Delete(ctx context.Context, callerID, collection, id string) (err error) {
	ctx, span := s.start(ctx, "documents.Delete", collection)
	defer func() { end(span, err) }()

	if err := checkCollection(collection); err != nil {
		return err
	}
	if !util.IsValidUUID(id) {
		return apperrors.NotFound("Document")
	}

	doc, err := s.repo.FindByID(ctx, collection, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if doc == nil || doc.OwnerID != callerID {
		return apperrors.NotFound("Document")
	}

	deleted, err := s.repo.Delete(ctx, collection, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("Document")
	}
	s.publish(ctx, collection, doc.OwnerID)
	return nil
}

// CheckSubscription validates a live query before the stream is opened.
func (s *DocumentService) CheckSubscription(callerID, collection string, filters []model.Filter) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	return checkFilters(callerID, filters)
}

func (s *DocumentService) publish(ctx context.Context, collection, ownerID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, collection, ownerID); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("collection", collection).Str("ownerId", ownerID).Msg("failed to publish change notification")
	}
}

func (s *DocumentService) start(ctx context.Context, name, collection string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("collection", collection)))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func checkCollection(collection string) error {
	if !model.IsCollection(collection) {
		return apperrors.NotFound("Collection")
	}
	return nil
}

func checkFilters(callerID string, filters []model.Filter) error {
	for _, f := range filters {
		if strings.TrimSpace(f.Field) == "" {
			return apperrors.InvalidInput("filters", "field is required")
		}
	}
	if _, ok := model.OwnerOf(filters); !ok {
		return apperrors.Forbidden("Queries must filter on userId")
	}
	for _, f := range filters {
		if f.Field == model.FieldUserID && f.Value != callerID {
			return apperrors.Forbidden("Queries must be scoped to the signed-in user")
		}
	}
	return nil
}
