package repository

import (
	"context"

	"finbook/internal/domain"
)

// OperationRepository exposes persistence operations for financial
// operations. Every lookup that takes a userID must filter by it, so an
// operation owned by another user behaves exactly like a missing row.
type OperationRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, userID int64, input domain.OperationInput) (*domain.Operation, error)
	CreateMany(ctx context.Context, userID int64, inputs []domain.OperationInput) ([]domain.Operation, error)
	Get(ctx context.Context, userID, id int64) (*domain.Operation, error)
	List(ctx context.Context, userID int64, kind *domain.OperationKind) ([]domain.Operation, error)
	Update(ctx context.Context, userID, id int64, input domain.OperationInput) (*domain.Operation, error)
	Delete(ctx context.Context, userID, id int64) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
}
