package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic/execution-service/internal/models"
	"clinic/execution-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "clinic/execution-service/internal/execution"

// Service exposes the execution worklist, the item status workflow and the
// notes ledger. The acting user is always an explicit argument.
type Service struct {
	store     store.ItemStore
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Options struct {
	Publisher Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewService(itemStore store.ItemStore, options Options) *Service {
	publisher := options.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:     itemStore,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       now,
	}
}

// Queue returns the executor's own visible items and the unclaimed ones.
func (s *Service) Queue(ctx context.Context, executorID string) (Queue, error) {
	ctx, span := s.tracer.Start(ctx, "execution.Queue", trace.WithAttributes(attribute.String("executor.id", executorID)))
	defer span.End()

	executorID = strings.TrimSpace(executorID)
	if err := requireID("executor_id", executorID); err != nil {
		return Queue{}, endSpan(span, err)
	}

	items, err := s.store.ListExecutionItems(ctx, executorID)
	if err != nil {
		s.logger.Error("list execution items", zap.String("executor_id", executorID), zap.Error(err))
		return Queue{}, endSpan(span, err)
	}

	queue := Partition(items, executorID)
	queueSize.WithLabelValues("mine").Observe(float64(len(queue.Mine)))
	queueSize.WithLabelValues("available").Observe(float64(len(queue.Available)))
	return queue, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (models.ProcedureItem, error) {
	itemID = strings.TrimSpace(itemID)
	if err := requireID("item_id", itemID); err != nil {
		return models.ProcedureItem{}, err
	}
	return s.store.GetItem(ctx, itemID)
}

// Claim assigns an unclaimed paid item to the executor and starts it.
func (s *Service) Claim(ctx context.Context, itemID, executorID string) (models.ProcedureItem, error) {
	return s.transition(ctx, store.ActionClaim, EventItemClaimed, itemID, executorID, s.store.ClaimItem)
}

// Advance moves an item the executor owns from pago to executando. Repeating
// it on an item already executando is a no-op.
func (s *Service) Advance(ctx context.Context, itemID, executorID string) (models.ProcedureItem, error) {
	return s.transition(ctx, store.ActionStart, EventItemStarted, itemID, executorID, s.store.StartItem)
}

// Complete finishes an executing item owned by the executor.
func (s *Service) Complete(ctx context.Context, itemID, executorID string) (models.ProcedureItem, error) {
	return s.transition(ctx, store.ActionComplete, EventItemCompleted, itemID, executorID, s.store.CompleteItem)
}

type transitionFunc func(ctx context.Context, input store.TransitionInput) (models.ProcedureItem, error)

func (s *Service) transition(ctx context.Context, action, eventType, itemID, executorID string, apply transitionFunc) (models.ProcedureItem, error) {
	ctx, span := s.tracer.Start(ctx, "execution."+action, trace.WithAttributes(
		attribute.String("item.id", itemID),
		attribute.String("executor.id", executorID),
	))
	defer span.End()

	itemID = strings.TrimSpace(itemID)
	executorID = strings.TrimSpace(executorID)
	if err := requireID("item_id", itemID); err != nil {
		transitionsTotal.WithLabelValues(action, outcome(err)).Inc()
		return models.ProcedureItem{}, endSpan(span, err)
	}
	if err := requireID("executor_id", executorID); err != nil {
		transitionsTotal.WithLabelValues(action, outcome(err)).Inc()
		return models.ProcedureItem{}, endSpan(span, err)
	}

	item, err := apply(ctx, store.TransitionInput{
		ItemID:     itemID,
		ExecutorID: executorID,
		OccurredAt: s.now(),
	})
	transitionsTotal.WithLabelValues(action, outcome(err)).Inc()
	if err != nil {
		fields := []zap.Field{zap.String("action", action), zap.String("item_id", itemID), zap.String("executor_id", executorID), zap.Error(err)}
		if errors.Is(err, store.ErrStore) {
			s.logger.Error("item transition failed", fields...)
		} else {
			s.logger.Info("item transition rejected", fields...)
		}
		return models.ProcedureItem{}, endSpan(span, err)
	}

	s.logger.Info("item transition applied",
		zap.String("action", action),
		zap.String("item_id", item.ItemID),
		zap.String("executor_id", executorID),
		zap.String("status", item.Status),
	)
	s.publisher.Publish(Event{Type: eventType, ItemID: item.ItemID, Item: &item, OccurredAt: s.now()})
	return item, nil
}

// AddNote appends a note to an item on behalf of userID.
func (s *Service) AddNote(ctx context.Context, itemID, userID, text string) (models.Note, error) {
	ctx, span := s.tracer.Start(ctx, "execution.AddNote", trace.WithAttributes(attribute.String("item.id", itemID)))
	defer span.End()

	itemID = strings.TrimSpace(itemID)
	userID = strings.TrimSpace(userID)
	if err := requireID("item_id", itemID); err != nil {
		return models.Note{}, endSpan(span, err)
	}
	if err := requireID("user_id", userID); err != nil {
		return models.Note{}, endSpan(span, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Note{}, endSpan(span, fmt.Errorf("%w: text is required", store.ErrInvalidArgument))
	}

	note, err := s.store.AddNote(ctx, store.NoteInput{
		ItemID:    itemID,
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrStore) {
			s.logger.Error("add note", zap.String("item_id", itemID), zap.Error(err))
		}
		return models.Note{}, endSpan(span, err)
	}

	notesTotal.Inc()
	s.publisher.Publish(Event{Type: EventNoteAdded, ItemID: itemID, Note: &note, OccurredAt: note.CreatedAt})
	return note, nil
}

// ListNotes returns an item's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, itemID string) ([]models.Note, error) {
	itemID = strings.TrimSpace(itemID)
	if err := requireID("item_id", itemID); err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

func requireID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", store.ErrInvalidArgument, field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%w: %s must be a UUID", store.ErrInvalidArgument, field)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, store.ErrItemNotFound), errors.Is(err, store.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, store.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, store.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, store.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, store.ErrStore):
		return "store_error"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
