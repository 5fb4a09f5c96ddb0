package accounting

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEventNotFound        = errors.New("event not found")
)

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) GetRegistration(ctx context.Context, id int64) (*Registration, error) {
	reg := &Registration{}
	err := r.db.GetContext(ctx, reg, `SELECT * FROM registrations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *SQLRepository) GetEvent(ctx context.Context, id int64) (*Event, error) {
	ev := &Event{}
	err := r.db.GetContext(ctx, ev, `SELECT * FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// TicketPrice returns 0 for a missing ticket; a registration without a
// resolved ticket still gets a balance.
func (r *SQLRepository) TicketPrice(ctx context.Context, ticketID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.GetContext(ctx, &price, `SELECT price FROM tickets WHERE id = $1`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func (r *SQLRepository) OptionsTotal(ctx context.Context, registrationID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(o.price), 0)
		FROM registration_options ro
		JOIN event_options o ON o.id = ro.option_id
		WHERE ro.registration_id = $1
	`, registrationID)
	return total, err
}

func (r *SQLRepository) DiscountTotal(ctx context.Context, memberID, eventID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(value), 0)
		FROM accounting_discounts
		WHERE member_id = $1 AND event_id = $2
	`, memberID, eventID)
	return total, err
}

func (r *SQLRepository) Payments(ctx context.Context, registrationID int64, filter PaymentFilter) ([]Payment, error) {
	query := `
		SELECT id, kind, value, member_id, assoc_id, registration_id, invoice_id, hidden, created
		FROM accounting_payments
		WHERE registration_id = $1`
	if filter.ExcludeHidden {
		query += ` AND hidden = FALSE`
	}
	query += ` ORDER BY id`

	var rows []Payment
	err := r.db.SelectContext(ctx, &rows, query, registrationID)
	return rows, err
}

func (r *SQLRepository) UserBurdenTotal(ctx context.Context, registrationID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(value), 0)
		FROM accounting_transactions
		WHERE registration_id = $1 AND user_burden = TRUE
	`, registrationID)
	return total, err
}

func (r *SQLRepository) GetOrCreateMembership(ctx context.Context, memberID, assocID int64) (*Membership, error) {
	m := &Membership{}
	err := r.db.GetContext(ctx, m,
		`SELECT * FROM memberships WHERE member_id = $1 AND assoc_id = $2`,
		memberID, assocID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO memberships (member_id, assoc_id, status, tokens, credit)
		VALUES ($1, $2, 'empty', 0, 0)
		RETURNING id, member_id, assoc_id, status, date, tokens, credit
	`, memberID, assocID).StructScan(m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SQLRepository) Installments(ctx context.Context, eventID int64) ([]Installment, error) {
	var rows []Installment
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM event_installments
		WHERE event_id = $1
		ORDER BY number, id
	`, eventID)
	return rows, err
}

// SaveAccounting persists only the derived accounting fields, so writing
// them back cannot cascade into another full registration save.
func (r *SQLRepository) SaveAccounting(ctx context.Context, reg *Registration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET total_due = $1, total_paid = $2, quota = $3, deadline = $4,
		    alert = $5, payment_date = $6, num_payments = $7
		WHERE id = $8
	`, reg.TotalDue, reg.TotalPaid, reg.Quota, reg.Deadline,
		reg.Alert, reg.PaymentDate, reg.NumPayments, reg.ID)
	return err
}

// ApplyTokensCredits settles up to remaining from the member's prepaid
// balances, tokens before credit, inside one transaction. The membership row
// is locked for the duration so concurrent applications cannot double-spend.
// Returns what is still owed after the application.
func (r *SQLRepository) ApplyTokensCredits(ctx context.Context, reg *Registration, assocID int64, remaining decimal.Decimal) (decimal.Decimal, error) {
	if remaining.IsNegative() {
		return remaining, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return remaining, err
	}
	defer tx.Rollback()

	var m Membership
	err = tx.QueryRowxContext(ctx, `
		SELECT id, member_id, assoc_id, status, date, tokens, credit
		FROM memberships
		WHERE member_id = $1 AND assoc_id = $2
		FOR UPDATE
	`, reg.MemberID, assocID).StructScan(&m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return remaining, nil
		}
		return remaining, err
	}

	useTokens := decimal.Min(remaining, m.Tokens)
	if useTokens.IsPositive() {
		if err := insertPrepaidPayment(ctx, tx, reg, assocID, PaymentToken, useTokens); err != nil {
			return remaining, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memberships SET tokens = tokens - $1 WHERE id = $2`,
			useTokens, m.ID); err != nil {
			return remaining, err
		}
		remaining = remaining.Sub(useTokens)
	}

	useCredit := decimal.Min(remaining, m.Credit)
	if useCredit.IsPositive() {
		if err := insertPrepaidPayment(ctx, tx, reg, assocID, PaymentCredit, useCredit); err != nil {
			return remaining, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memberships SET credit = credit - $1 WHERE id = $2`,
			useCredit, m.ID); err != nil {
			return remaining, err
		}
		remaining = remaining.Sub(useCredit)
	}

	if err := tx.Commit(); err != nil {
		return remaining, err
	}
	return remaining, nil
}

func insertPrepaidPayment(ctx context.Context, tx *sqlx.Tx, reg *Registration, assocID int64, kind PaymentKind, value decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounting_payments (kind, value, member_id, assoc_id, registration_id)
		VALUES ($1, $2, $3, $4, $5)
	`, kind, value, reg.MemberID, assocID, reg.ID)
	return err
}

// ReverseOverpay walks the registration's token/credit payment rows and
// removes overpay worth of value: credit rows first, then tokens, each by
// largest value then most recent id. Rows reduced to zero are deleted. All
// candidate rows are locked up front to serialize against concurrent use.
func (r *SQLRepository) ReverseOverpay(ctx context.Context, registrationID int64, overpay decimal.Decimal) error {
	if !overpay.IsPositive() {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rows []Payment
	err = tx.SelectContext(ctx, &rows, `
		SELECT id, kind, value, member_id, assoc_id, registration_id, invoice_id, hidden, created
		FROM accounting_payments
		WHERE registration_id = $1 AND kind IN ('token', 'credit')
		ORDER BY CASE WHEN kind = 'credit' THEN 0 ELSE 1 END, value DESC, id DESC
		FOR UPDATE
	`, registrationID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if !overpay.IsPositive() {
			break
		}
		take := decimal.Min(overpay, row.Value)
		if take.Equal(row.Value) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM accounting_payments WHERE id = $1`, row.ID); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounting_payments SET value = value - $1 WHERE id = $2`,
				take, row.ID); err != nil {
				return err
			}
		}
		overpay = overpay.Sub(take)
	}

	return tx.Commit()
}

// RecomputeMemberBalances rebuilds the membership's token and credit
// balances from the full ledger and stores them. Balances are never trusted
// as running counters.
func (r *SQLRepository) RecomputeMemberBalances(ctx context.Context, memberID, assocID int64) (decimal.Decimal, decimal.Decimal, error) {
	var sums struct {
		TokensGiven  decimal.Decimal `db:"tokens_given"`
		TokensUsed   decimal.Decimal `db:"tokens_used"`
		CreditGiven  decimal.Decimal `db:"credit_given"`
		CreditUsed   decimal.Decimal `db:"credit_used"`
		CreditRefund decimal.Decimal `db:"credit_refund"`
	}
	err := r.db.GetContext(ctx, &sums, `
		SELECT
			COALESCE((SELECT SUM(value) FROM accounting_others
				WHERE member_id = $1 AND assoc_id = $2 AND kind = 'token'), 0) AS tokens_given,
			COALESCE((SELECT SUM(value) FROM accounting_payments
				WHERE member_id = $1 AND assoc_id = $2 AND kind = 'token'), 0) AS tokens_used,
			COALESCE((SELECT SUM(value) FROM accounting_others
				WHERE member_id = $1 AND assoc_id = $2 AND kind IN ('credit', 'credit_grant')), 0) AS credit_given,
			COALESCE((SELECT SUM(value) FROM accounting_payments
				WHERE member_id = $1 AND assoc_id = $2 AND kind = 'credit'), 0) AS credit_used,
			COALESCE((SELECT SUM(value) FROM accounting_others
				WHERE member_id = $1 AND assoc_id = $2 AND kind = 'refund'), 0) AS credit_refund
	`, memberID, assocID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	tokens := sums.TokensGiven.Sub(sums.TokensUsed)
	credit := sums.CreditGiven.Sub(sums.CreditUsed).Sub(sums.CreditRefund)

	_, err = r.db.ExecContext(ctx, `
		UPDATE memberships SET tokens = $1, credit = $2
		WHERE member_id = $3 AND assoc_id = $4
	`, tokens, credit, memberID, assocID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return tokens, credit, nil
}

func (r *SQLRepository) SetCancellation(ctx context.Context, registrationID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE registrations SET cancellation_date = NOW()
		WHERE id = $1 AND cancellation_date IS NULL
	`, registrationID)
	return err
}

func (r *SQLRepository) CreateOther(ctx context.Context, item *Other) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO accounting_others (member_id, assoc_id, event_id, kind, value, descr)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created
	`, item.MemberID, item.AssocID, item.EventID, item.Kind, item.Value, item.Description,
	).Scan(&item.ID, &item.Created)
}

// OpenRegistrations lists the member's live registrations for the
// association, the set a balance change can affect.
func (r *SQLRepository) OpenRegistrations(ctx context.Context, memberID, assocID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT r.id
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.member_id = $1 AND e.assoc_id = $2
		  AND r.cancellation_date IS NULL
		  AND e.status NOT IN ('done', 'cancelled')
		ORDER BY r.id
	`, memberID, assocID)
	return ids, err
}
