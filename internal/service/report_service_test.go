package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbook/internal/domain"
)

func newReportFixture(t *testing.T) (OperationService, ReportService, int64) {
	t.Helper()

	users, operations := newTestRepos(t)
	userSvc := NewUserService(users, 4)
	user, err := userSvc.Register(context.Background(), "a@x.com", "a", "password")
	require.NoError(t, err)

	opSvc := NewOperationService(operations)
	return opSvc, NewReportService(opSvc), user.ID
}

func mustInput(t *testing.T, date, kind, amount string, description *string) domain.OperationInput {
	t.Helper()
	input, err := ParseOperationInput(date, kind, amount, description)
	require.NoError(t, err)
	return input
}

func TestExportFormat(t *testing.T) {
	opSvc, reports, userID := newReportFixture(t)
	ctx := context.Background()

	desc := "groceries"
	_, err := opSvc.Create(ctx, userID, mustInput(t, "2024-01-01", "income", "100.00", nil))
	require.NoError(t, err)
	_, err = opSvc.Create(ctx, userID, mustInput(t, "2024-01-02", "outcome", "19.5", &desc))
	require.NoError(t, err)

	data, err := reports.Export(ctx, userID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,kind,amount,description", lines[0])
	assert.Equal(t, "2024-01-01,income,100.00,", lines[1])
	assert.Equal(t, "2024-01-02,outcome,19.50,groceries", lines[2])
}

func TestImportReconciliation(t *testing.T) {
	_, reports, userID := newReportFixture(t)
	ctx := context.Background()

	csv := "date,kind,amount,description\n" +
		"2024-01-01,income,100.00,salary\n" +
		"2024-01-02,outcome,5.25,\n"

	rec, err := reports.Import(ctx, userID, "report.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.RowsBefore)
	assert.Equal(t, int64(2), rec.RowsAfter)
	assert.Equal(t, int64(2), rec.RowsDifference)
}

func TestImportNormalizesEmptyDescription(t *testing.T) {
	opSvc, reports, userID := newReportFixture(t)
	ctx := context.Background()

	csv := "date,kind,amount,description\n2024-01-01,income,100.00,\n"
	_, err := reports.Import(ctx, userID, "report.csv", strings.NewReader(csv))
	require.NoError(t, err)

	operations, err := opSvc.List(ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, operations, 1)
	assert.Nil(t, operations[0].Description)
}

func TestImportRejectsNonCSV(t *testing.T) {
	_, reports, userID := newReportFixture(t)

	_, err := reports.Import(context.Background(), userID, "report.txt", strings.NewReader("whatever"))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestImportMalformedRowIsAtomic(t *testing.T) {
	opSvc, reports, userID := newReportFixture(t)
	ctx := context.Background()

	csv := "date,kind,amount,description\n" +
		"2024-01-01,income,100.00,ok\n" +
		"2024-01-02,transfer,5.00,bad kind\n" +
		"2024-01-03,outcome,1.00,never reached\n"

	_, err := reports.Import(ctx, userID, "report.csv", strings.NewReader(csv))
	require.Error(t, err)

	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Row)

	count, err := opSvc.RowCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestExportImportRoundTrip(t *testing.T) {
	users, operations := newTestRepos(t)
	userSvc := NewUserService(users, 4)
	opSvc := NewOperationService(operations)
	reports := NewReportService(opSvc)
	ctx := context.Background()

	alice, err := userSvc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)
	bob, err := userSvc.Register(ctx, "b@x.com", "b", "password")
	require.NoError(t, err)

	desc := "rent"
	_, err = opSvc.Create(ctx, alice.ID, mustInput(t, "2024-01-01", "income", "1500.00", nil))
	require.NoError(t, err)
	_, err = opSvc.Create(ctx, alice.ID, mustInput(t, "2024-01-05", "outcome", "900.00", &desc))
	require.NoError(t, err)

	exported, err := reports.Export(ctx, alice.ID)
	require.NoError(t, err)

	rec, err := reports.Import(ctx, bob.ID, "report.csv", strings.NewReader(string(exported)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.RowsDifference)

	aliceOps, err := opSvc.List(ctx, alice.ID, nil)
	require.NoError(t, err)
	bobOps, err := opSvc.List(ctx, bob.ID, nil)
	require.NoError(t, err)
	require.Len(t, bobOps, len(aliceOps))

	for i := range aliceOps {
		assert.Equal(t, aliceOps[i].Date, bobOps[i].Date)
		assert.Equal(t, aliceOps[i].Kind, bobOps[i].Kind)
		assert.Equal(t, aliceOps[i].Amount.StringFixed(2), bobOps[i].Amount.StringFixed(2))
		assert.Equal(t, aliceOps[i].Description, bobOps[i].Description)
		assert.NotEqual(t, aliceOps[i].ID, bobOps[i].ID)
	}
}

func TestParseOperationInput(t *testing.T) {
	_, err := ParseOperationInput("2024-13-40", "income", "1.00", nil)
	assert.Error(t, err)

	_, err = ParseOperationInput("2024-01-01", "transfer", "1.00", nil)
	assert.Error(t, err)

	_, err = ParseOperationInput("2024-01-01", "income", "abc", nil)
	assert.Error(t, err)

	_, err = ParseOperationInput("2024-01-01", "income", "1.005", nil)
	assert.Error(t, err)

	empty := ""
	input, err := ParseOperationInput("2024-01-01", "income", "1.5", &empty)
	require.NoError(t, err)
	assert.Nil(t, input.Description)
	assert.Equal(t, "1.50", input.Amount.StringFixed(2))
}
