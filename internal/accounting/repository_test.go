package accounting

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepoMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestGetRegistration_NotFound(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM registrations WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetRegistration(context.Background(), 99)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestTicketPrice_MissingTicketIsZero(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT price FROM tickets WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"price"}))

	price, err := repo.TicketPrice(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestPayments_HiddenFilter(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	cols := []string{"id", "kind", "value", "member_id", "assoc_id", "registration_id", "invoice_id", "hidden", "created"}

	mock.ExpectQuery("FROM accounting_payments").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "money", "100", 5, 1, 1, nil, false, time.Now()).
			AddRow(2, "money", "20", 5, 1, 1, nil, true, time.Now()))

	rows, err := repo.Payments(context.Background(), 1, PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	mock.ExpectQuery("AND hidden = FALSE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "money", "100", 5, 1, 1, nil, false, time.Now()))

	rows, err = repo.Payments(context.Background(), 1, PaymentFilter{ExcludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestApplyTokensCredits_TokensBeforeCredit(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	reg := &Registration{ID: 1, MemberID: 5}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM memberships").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "assoc_id", "status", "date", "tokens", "credit"}).
			AddRow(3, 5, 1, "accepted", nil, "20", "50"))

	// All 20 tokens go first.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounting_payments")).
		WithArgs(PaymentToken, decArg("20"), int64(5), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET tokens = tokens - $1 WHERE id = $2")).
		WithArgs(decArg("20"), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Then 40 of the 50 credit.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounting_payments")).
		WithArgs(PaymentCredit, decArg("40"), int64(5), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET credit = credit - $1 WHERE id = $2")).
		WithArgs(decArg("40"), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	leftover, err := repo.ApplyTokensCredits(context.Background(), reg, 1, dec("60"))
	require.NoError(t, err)
	assert.True(t, leftover.IsZero(), "leftover = %s", leftover)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTokensCredits_PartialBalanceLeavesRemainder(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	reg := &Registration{ID: 1, MemberID: 5}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM memberships").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "assoc_id", "status", "date", "tokens", "credit"}).
			AddRow(3, 5, 1, "accepted", nil, "20", "50"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounting_payments")).
		WithArgs(PaymentToken, decArg("20"), int64(5), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET tokens = tokens - $1 WHERE id = $2")).
		WithArgs(decArg("20"), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounting_payments")).
		WithArgs(PaymentCredit, decArg("50"), int64(5), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET credit = credit - $1 WHERE id = $2")).
		WithArgs(decArg("50"), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	leftover, err := repo.ApplyTokensCredits(context.Background(), reg, 1, dec("100"))
	require.NoError(t, err)
	assert.True(t, leftover.Equal(dec("30")), "leftover = %s", leftover)
}

func TestApplyTokensCredits_NoMembershipRowIsNoop(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM memberships").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	leftover, err := repo.ApplyTokensCredits(context.Background(), &Registration{ID: 1, MemberID: 5}, 1, dec("60"))
	require.NoError(t, err)
	assert.True(t, leftover.Equal(dec("60")))
}

func TestReverseOverpay_DeletesThenTrims(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	cols := []string{"id", "kind", "value", "member_id", "assoc_id", "registration_id", "invoice_id", "hidden", "created"}

	mock.ExpectBegin()
	// Ordering puts credit rows before token rows.
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, "credit", "40", 5, 1, 1, nil, false, time.Now()).
			AddRow(2, "token", "30", 5, 1, 1, nil, false, time.Now()))

	// 50 to give back: the credit row goes entirely, the token row shrinks.
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounting_payments WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounting_payments SET value = value - $1 WHERE id = $2")).
		WithArgs(decArg("10"), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	err := repo.ReverseOverpay(context.Background(), 1, dec("50"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReverseOverpay_ZeroIsNoop(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	err := repo.ReverseOverpay(context.Background(), 1, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeMemberBalances(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectQuery("tokens_given").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"tokens_given", "tokens_used", "credit_given", "credit_used", "credit_refund"}).
			AddRow("50", "20", "100", "40", "10"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET tokens = $1, credit = $2")).
		WithArgs(decArg("30"), decArg("50"), int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tokens, credit, err := repo.RecomputeMemberBalances(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.True(t, tokens.Equal(dec("30")), "tokens = %s", tokens)
	assert.True(t, credit.Equal(dec("50")), "credit = %s", credit)
}

// decArg matches a decimal passed as a driver value regardless of its
// textual rendering.
func decArg(want string) sqlmock.Argument {
	return decimalMatcher{want: dec(want)}
}

type decimalMatcher struct {
	want decimal.Decimal
}

func (m decimalMatcher) Match(v driver.Value) bool {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		return err == nil && d.Equal(m.want)
	case []byte:
		d, err := decimal.NewFromString(string(x))
		return err == nil && d.Equal(m.want)
	case float64:
		return decimal.NewFromFloat(x).Equal(m.want)
	case int64:
		return decimal.NewFromInt(x).Equal(m.want)
	}
	return false
}
