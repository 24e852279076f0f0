package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OperationKind string

const (
	OperationKindIncome  OperationKind = "income"
	OperationKindOutcome OperationKind = "outcome"
)

// ParseOperationKind validates kind enum membership.
func ParseOperationKind(s string) (OperationKind, error) {
	switch OperationKind(s) {
	case OperationKindIncome:
		return OperationKindIncome, nil
	case OperationKindOutcome:
		return OperationKindOutcome, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// Operation represents a single dated financial transaction owned by one user.
type Operation struct {
	ID          int64
	UserID      int64
	Date        time.Time
	Kind        OperationKind
	Amount      decimal.Decimal
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OperationInput carries the mutable fields of an operation for create and
// full-replacement update paths. Amount is kept at two fraction digits.
type OperationInput struct {
	Date        time.Time
	Kind        OperationKind
	Amount      decimal.Decimal
	Description *string
}
