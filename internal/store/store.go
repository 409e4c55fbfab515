package store

import (
	"context"
	"time"

	"clinic/execution-service/internal/models"
)

type TransitionInput struct {
	ItemID     string
	ExecutorID string
	OccurredAt time.Time
}

type NoteInput struct {
	ItemID    string
	UserID    string
	Text      string
	CreatedAt time.Time
}

type LoginInput struct {
	Login    string
	Password string
}

// ItemStore is the persistence contract of the execution workflow. Every
// transition must be applied as one conditional update so that concurrent
// callers cannot both succeed.
type ItemStore interface {
	ListExecutionItems(ctx context.Context, executorID string) ([]models.ProcedureItem, error)
	GetItem(ctx context.Context, itemID string) (models.ProcedureItem, error)
	ClaimItem(ctx context.Context, input TransitionInput) (models.ProcedureItem, error)
	StartItem(ctx context.Context, input TransitionInput) (models.ProcedureItem, error)
	CompleteItem(ctx context.Context, input TransitionInput) (models.ProcedureItem, error)
	AddNote(ctx context.Context, input NoteInput) (models.Note, error)
	ListNotes(ctx context.Context, itemID string) ([]models.Note, error)
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	Login(ctx context.Context, input LoginInput) (models.User, error)
}

type Store interface {
	ItemStore
	UserStore
}
