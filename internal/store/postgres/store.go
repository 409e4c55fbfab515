package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic/execution-service/internal/models"
	"clinic/execution-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

const itemColumns = `
	i.item_id, i.service_record_id, i.procedure_type_id, p.name,
	i.executor_id, e.name, i.created_by, sr.client_id, c.name,
	i.value, i.amount_paid, i.status, i.created_at, i.completed_at`

const itemJoins = `
	JOIN service_records sr ON sr.service_record_id = i.service_record_id
	JOIN procedure_types p ON p.procedure_type_id = i.procedure_type_id
	JOIN clients c ON c.client_id = sr.client_id
	LEFT JOIN users e ON e.user_id = i.executor_id`

type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

type Options struct {
	// OperationTimeout bounds every store call. Zero leaves the caller's deadline alone.
	OperationTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	return &Store{
		pool:    pool,
		timeout: options.OperationTimeout,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) ListExecutionItems(ctx context.Context, executorID string) ([]models.ProcedureItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM procedure_items i`+itemJoins+`
		WHERE sr.status = $1
		  AND i.status = ANY($2)
		  AND (i.executor_id IS NULL OR i.executor_id = $3)
		ORDER BY i.created_at DESC, i.item_id DESC
	`, models.RecordStatusExecuting, models.VisibleItemStatuses, executorID)
	if err != nil {
		return nil, mapPgError("list execution items", err)
	}
	defer rows.Close()

	items := []models.ProcedureItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, store.Unavailable("scan execution item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list execution items", err)
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (models.ProcedureItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return getItem(ctx, s.pool, itemID)
}

func (s *Store) ClaimItem(ctx context.Context, input store.TransitionInput) (models.ProcedureItem, error) {
	return s.transition(ctx, store.ActionClaim, input, `
		UPDATE procedure_items AS i
		SET executor_id = $2, status = $3
		FROM service_records AS sr
		WHERE i.item_id = $1
		  AND i.executor_id IS NULL
		  AND i.status = ANY($4)
		  AND sr.service_record_id = i.service_record_id
		  AND sr.status = $5
		RETURNING i.*`,
		input.ItemID, input.ExecutorID, store.TargetStatus(store.ActionClaim), store.AllowedFrom(store.ActionClaim), models.RecordStatusExecuting)
}

func (s *Store) StartItem(ctx context.Context, input store.TransitionInput) (models.ProcedureItem, error) {
	return s.transition(ctx, store.ActionStart, input, `
		UPDATE procedure_items AS i
		SET status = $3
		WHERE i.item_id = $1
		  AND i.executor_id = $2
		  AND i.status = ANY($4)
		RETURNING i.*`,
		input.ItemID, input.ExecutorID, store.TargetStatus(store.ActionStart), store.AllowedFrom(store.ActionStart))
}

func (s *Store) CompleteItem(ctx context.Context, input store.TransitionInput) (models.ProcedureItem, error) {
	completedAt := input.OccurredAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	return s.transition(ctx, store.ActionComplete, input, `
		UPDATE procedure_items AS i
		SET status = $3, completed_at = $5
		WHERE i.item_id = $1
		  AND i.executor_id = $2
		  AND i.status = ANY($4)
		RETURNING i.*`,
		input.ItemID, input.ExecutorID, store.TargetStatus(store.ActionComplete), store.AllowedFrom(store.ActionComplete), completedAt)
}

// transition runs a single conditional update for action. When it touches no
// row the current item state is read inside the same transaction to report why.
func (s *Store) transition(ctx context.Context, action string, input store.TransitionInput, update string, args ...interface{}) (models.ProcedureItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	op := action + " item"
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ProcedureItem{}, store.Unavailable(op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
		WITH i AS (`+update+`)
		SELECT `+itemColumns+`
		FROM i`+itemJoins, args...)
	item, err := scanItem(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.ProcedureItem{}, mapPgError(op, err)
		}
		state, found, err := loadItemState(ctx, tx, input.ItemID)
		if err != nil {
			return models.ProcedureItem{}, err
		}
		if !found {
			return models.ProcedureItem{}, store.ErrItemNotFound
		}
		if err := store.Rejection(action, state.status, state.executorID, input.ExecutorID); err != nil {
			return models.ProcedureItem{}, err
		}
		item, err = getItem(ctx, tx, input.ItemID)
		if err != nil {
			return models.ProcedureItem{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ProcedureItem{}, store.Unavailable(op, err)
	}
	return item, nil
}

type itemState struct {
	status     string
	executorID string
}

func loadItemState(ctx context.Context, tx pgx.Tx, itemID string) (itemState, bool, error) {
	var state itemState
	var executorID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT status, executor_id
		FROM procedure_items
		WHERE item_id = $1
		FOR UPDATE
	`, itemID)
	if err := row.Scan(&state.status, &executorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return itemState{}, false, nil
		}
		return itemState{}, false, mapPgError("load item state", err)
	}
	if executorID.Valid {
		state.executorID = executorID.String
	}
	return state, true, nil
}

type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

func getItem(ctx context.Context, q querier, itemID string) (models.ProcedureItem, error) {
	row := q.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM procedure_items i`+itemJoins+`
		WHERE i.item_id = $1
	`, itemID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ProcedureItem{}, store.ErrItemNotFound
		}
		return models.ProcedureItem{}, mapPgError("get item", err)
	}
	return item, nil
}

func scanItem(row pgx.Row) (models.ProcedureItem, error) {
	var item models.ProcedureItem
	var executorID sql.NullString
	var executorName sql.NullString
	var createdBy sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(
		&item.ItemID, &item.ServiceRecordID, &item.ProcedureTypeID, &item.ProcedureName,
		&executorID, &executorName, &createdBy, &item.ClientID, &item.ClientName,
		&item.Value, &item.AmountPaid, &item.Status, &item.CreatedAt, &completedAt,
	); err != nil {
		return models.ProcedureItem{}, err
	}
	item.ExecutorID = nullStringPtr(executorID)
	item.ExecutorName = nullStringPtr(executorName)
	item.CreatedBy = nullStringPtr(createdBy)
	item.CompletedAt = nullTimePtr(completedAt)
	return item, nil
}

func (s *Store) AddNote(ctx context.Context, input store.NoteInput) (models.Note, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var note models.Note
	row := s.pool.QueryRow(ctx, `
		WITH n AS (
			INSERT INTO item_notes (note_id, item_id, user_id, text, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING note_id, item_id, user_id, text, created_at
		)
		SELECT n.note_id, n.item_id, n.user_id, u.name, n.text, n.created_at
		FROM n
		JOIN users u ON u.user_id = n.user_id
	`, uuid.NewString(), input.ItemID, input.UserID, input.Text, createdAt)
	if err := row.Scan(&note.NoteID, &note.ItemID, &note.UserID, &note.AuthorName, &note.Text, &note.CreatedAt); err != nil {
		return models.Note{}, mapPgError("add note", err)
	}
	return note, nil
}

func (s *Store) ListNotes(ctx context.Context, itemID string) ([]models.Note, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT n.note_id, n.item_id, n.user_id, u.name, n.text, n.created_at
		FROM item_notes n
		JOIN users u ON u.user_id = n.user_id
		WHERE n.item_id = $1
		ORDER BY n.created_at DESC, n.seq DESC
	`, itemID)
	if err != nil {
		return nil, mapPgError("list notes", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var note models.Note
		if err := rows.Scan(&note.NoteID, &note.ItemID, &note.UserID, &note.AuthorName, &note.Text, &note.CreatedAt); err != nil {
			return nil, store.Unavailable("scan note", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list notes", err)
	}
	return notes, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, login, role, created_at
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&user.UserID, &user.Name, &user.Login, &user.Role, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, mapPgError("get user", err)
	}
	return user, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, login, role, password_hash, created_at
		FROM users
		WHERE lower(login) = lower($1) AND active = TRUE
	`, strings.TrimSpace(input.Login))
	if err := row.Scan(&user.UserID, &user.Name, &user.Login, &user.Role, &passwordHash, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, mapPgError("login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	return user, nil
}

// mapPgError turns driver failures into store errors. Foreign key violations
// identify the missing referenced row by constraint name.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			switch {
			case strings.HasSuffix(pgErr.ConstraintName, "item_id_fkey"):
				return fmt.Errorf("%s: %w", op, store.ErrItemNotFound)
			case strings.HasSuffix(pgErr.ConstraintName, "user_id_fkey"),
				strings.HasSuffix(pgErr.ConstraintName, "executor_id_fkey"):
				return fmt.Errorf("%s: %w", op, store.ErrUserNotFound)
			}
		case pgInvalidTextRepr:
			return fmt.Errorf("%s: %w", op, store.ErrInvalidArgument)
		}
	}
	return store.Unavailable(op, err)
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
