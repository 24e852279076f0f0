package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"finbook/internal/domain"
)

// ErrUnsupportedMedia is returned when an import payload is not a CSV file.
var ErrUnsupportedMedia = errors.New("only .csv files are supported")

// csvFields is the fixed column order for both export and import.
var csvFields = []string{"date", "kind", "amount", "description"}

// RowError marks a malformed CSV row; the row number is 1-based and counts
// the header.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reconciliation is the before/after row count audit returned by imports.
type Reconciliation struct {
	RowsBefore     int64 `json:"rows_before"`
	RowsAfter      int64 `json:"rows_after"`
	RowsDifference int64 `json:"rows_difference"`
}

// ReportService handles bulk CSV export and import of operations.
type ReportService interface {
	Export(ctx context.Context, userID int64) ([]byte, error)
	Import(ctx context.Context, userID int64, filename string, r io.Reader) (*Reconciliation, error)
}

type reportService struct {
	operations OperationService
}

func NewReportService(operations OperationService) ReportService {
	return &reportService{operations: operations}
}

// Export renders all operations of the user as CSV in list order. Amounts are
// rendered with two fraction digits; a missing description becomes an empty
// field.
func (s *reportService) Export(ctx context.Context, userID int64) ([]byte, error) {
	operations, err := s.operations.List(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvFields); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, op := range operations {
		description := ""
		if op.Description != nil {
			description = *op.Description
		}
		record := []string{
			op.Date.Format(operationDateLayout),
			string(op.Kind),
			op.Amount.StringFixed(2),
			description,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Import parses the CSV, validates every row, and bulk-inserts them in one
// transaction; a single malformed row fails the whole batch. Empty
// descriptions are normalized to absent on the way in.
func (s *reportService) Import(ctx context.Context, userID int64, filename string, r io.Reader) (*Reconciliation, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".csv" {
		return nil, ErrUnsupportedMedia
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvFields)

	var inputs []domain.OperationInput
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}
		if rowNum == 1 {
			// header row
			continue
		}

		description := record[3]
		input, err := ParseOperationInput(record[0], record[1], record[2], &description)
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}
		inputs = append(inputs, input)
	}

	before, err := s.operations.RowCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.operations.CreateMany(ctx, userID, inputs); err != nil {
		return nil, err
	}

	after, err := s.operations.RowCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Reconciliation{
		RowsBefore:     before,
		RowsAfter:      after,
		RowsDifference: after - before,
	}, nil
}
