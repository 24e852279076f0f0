package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finbook/internal/domain"
	"finbook/internal/repository"
)

// ErrOperationNotFound covers both truly absent operations and operations
// owned by someone else, so existence never leaks across accounts.
var ErrOperationNotFound = errors.New("operation not found")

const operationDateLayout = "2006-01-02"

// OperationService coordinates ownership-scoped CRUD over operations.
type OperationService interface {
	List(ctx context.Context, userID int64, kind *domain.OperationKind) ([]domain.Operation, error)
	Get(ctx context.Context, userID, id int64) (*domain.Operation, error)
	Create(ctx context.Context, userID int64, input domain.OperationInput) (*domain.Operation, error)
	CreateMany(ctx context.Context, userID int64, inputs []domain.OperationInput) ([]domain.Operation, error)
	Update(ctx context.Context, userID, id int64, input domain.OperationInput) (*domain.Operation, error)
	Delete(ctx context.Context, userID, id int64) error
	RowCount(ctx context.Context, userID int64) (int64, error)
}

type operationService struct {
	operations repository.OperationRepository
}

func NewOperationService(operations repository.OperationRepository) OperationService {
	return &operationService{operations: operations}
}

func (s *operationService) List(ctx context.Context, userID int64, kind *domain.OperationKind) ([]domain.Operation, error) {
	return s.operations.List(ctx, userID, kind)
}

func (s *operationService) Get(ctx context.Context, userID, id int64) (*domain.Operation, error) {
	op, err := s.operations.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *operationService) Create(ctx context.Context, userID int64, input domain.OperationInput) (*domain.Operation, error) {
	return s.operations.Create(ctx, userID, input)
}

func (s *operationService) CreateMany(ctx context.Context, userID int64, inputs []domain.OperationInput) ([]domain.Operation, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	return s.operations.CreateMany(ctx, userID, inputs)
}

func (s *operationService) Update(ctx context.Context, userID, id int64, input domain.OperationInput) (*domain.Operation, error) {
	op, err := s.operations.Update(ctx, userID, id, input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *operationService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.operations.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOperationNotFound
		}
		return err
	}
	return nil
}

func (s *operationService) RowCount(ctx context.Context, userID int64) (int64, error) {
	return s.operations.CountByUser(ctx, userID)
}

// ParseOperationInput validates the raw string fields shared by request
// bodies and CSV rows: ISO date, kind membership, decimal amount with at
// most two fraction digits.
func ParseOperationInput(dateStr, kindStr, amountStr string, description *string) (domain.OperationInput, error) {
	date, err := time.Parse(operationDateLayout, dateStr)
	if err != nil {
		return domain.OperationInput{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", dateStr)
	}

	kind, err := domain.ParseOperationKind(kindStr)
	if err != nil {
		return domain.OperationInput{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return domain.OperationInput{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	if amount.Exponent() < -2 {
		return domain.OperationInput{}, fmt.Errorf("invalid amount %q: at most 2 fraction digits", amountStr)
	}

	if description != nil && *description == "" {
		description = nil
	}

	return domain.OperationInput{
		Date:        date,
		Kind:        kind,
		Amount:      amount,
		Description: description,
	}, nil
}
