package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finbook/internal/domain"
	"finbook/internal/repository"
)

const createOperationsTable = `
CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	date TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	description TEXT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_user_id ON operations(user_id);
`

// dateLayout is the ISO day format operations are stored and exchanged in.
const dateLayout = "2006-01-02"

type OperationRepository struct {
	db *sql.DB
}

func NewOperationRepository(db *sql.DB) repository.OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createOperationsTable); err != nil {
		return fmt.Errorf("create operations table: %w", err)
	}
	return nil
}

func (r *OperationRepository) Create(ctx context.Context, userID int64, input domain.OperationInput) (*domain.Operation, error) {
	op, err := insertOperation(ctx, r.db, userID, input)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// CreateMany inserts all rows inside one transaction so a failing row leaves
// the table untouched.
func (r *OperationRepository) CreateMany(ctx context.Context, userID int64, inputs []domain.OperationInput) ([]domain.Operation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback()

	operations := make([]domain.Operation, 0, len(inputs))
	for i, input := range inputs {
		op, err := insertOperation(ctx, tx, userID, input)
		if err != nil {
			return nil, fmt.Errorf("bulk insert row %d: %w", i+1, err)
		}
		operations = append(operations, *op)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return operations, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOperation(ctx context.Context, db execer, userID int64, input domain.OperationInput) (*domain.Operation, error) {
	now := time.Now().UTC()

	res, err := db.ExecContext(ctx, `
INSERT INTO operations (user_id, date, kind, amount, description, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID,
		input.Date.Format(dateLayout),
		string(input.Kind),
		input.Amount.StringFixed(2),
		nullableString(input.Description),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert operation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("operation last insert id: %w", err)
	}

	return &domain.Operation{
		ID:          id,
		UserID:      userID,
		Date:        input.Date,
		Kind:        input.Kind,
		Amount:      input.Amount,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *OperationRepository) Get(ctx context.Context, userID, id int64) (*domain.Operation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, date, kind, amount, description, created_at, updated_at
FROM operations
WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	return scanOperation(row)
}

func (r *OperationRepository) List(ctx context.Context, userID int64, kind *domain.OperationKind) ([]domain.Operation, error) {
	query := `
SELECT id, user_id, date, kind, amount, description, created_at, updated_at
FROM operations
WHERE user_id = ?`
	args := []any{userID}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var operations []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		operations = append(operations, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return operations, nil
}

func (r *OperationRepository) Update(ctx context.Context, userID, id int64, input domain.OperationInput) (*domain.Operation, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE operations
SET date = ?, kind = ?, amount = ?, description = ?, updated_at = ?
WHERE id = ? AND user_id = ?`,
		input.Date.Format(dateLayout),
		string(input.Kind),
		input.Amount.StringFixed(2),
		nullableString(input.Description),
		time.Now().UTC(),
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update operation rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("operation: %w", repository.ErrNotFound)
	}
	return r.Get(ctx, userID, id)
}

func (r *OperationRepository) Delete(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM operations
WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete operation rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *OperationRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM operations WHERE user_id = ?`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return count, nil
}

func scanOperation(row interface {
	Scan(dest ...any) error
}) (*domain.Operation, error) {
	var (
		op         domain.Operation
		dateStr    string
		amountStr  string
		descriptor sql.NullString
	)
	if err := row.Scan(
		&op.ID,
		&op.UserID,
		&dateStr,
		&op.Kind,
		&amountStr,
		&descriptor,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parse operation date: %w", err)
	}
	op.Date = date

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse operation amount: %w", err)
	}
	op.Amount = amount

	if descriptor.Valid {
		op.Description = &descriptor.String
	}
	return &op, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
