package invoice

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"larpledger/internal/db"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: database}
}

func (r *SQLRepository) Create(ctx context.Context, inv *PaymentInvoice) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO payment_invoices
			(cod, assoc_id, member_id, typ, method, status, mc_gross, mc_fee, causal, reg_id, coll_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created
	`, inv.Cod, inv.AssocID, inv.MemberID, inv.Typ, inv.Method, inv.Status,
		inv.Gross, inv.Fee, inv.Causal, inv.RegID, inv.CollectionID,
	).Scan(&inv.ID, &inv.Created)
}

// GetByCode resolves an invoice by its own code or by the provider
// correlation id stored on it, whichever the gateway handed back.
func (r *SQLRepository) GetByCode(ctx context.Context, cod string) (*PaymentInvoice, error) {
	inv := &PaymentInvoice{}
	err := r.db.GetContext(ctx, inv,
		`SELECT * FROM payment_invoices WHERE cod = $1 OR key_id = $1`, cod)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *SQLRepository) CodeExists(ctx context.Context, cod string) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM payment_invoices WHERE cod = $1)`, cod)
}

func (r *SQLRepository) SetKeyID(ctx context.Context, id int64, keyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_invoices SET key_id = $1 WHERE id = $2`, keyID, id)
	return err
}

func (r *SQLRepository) SetGrossFee(ctx context.Context, id int64, gross, fee decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_invoices SET mc_gross = $1, mc_fee = $2 WHERE id = $3`,
		gross, fee, id)
	return err
}

func (r *SQLRepository) SaveSettlement(ctx context.Context, inv *PaymentInvoice) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_invoices
		SET status = $1, mc_gross = $2, mc_fee = $3, txn_id = $4
		WHERE id = $5
	`, inv.Status, inv.Gross, inv.Fee, inv.TxnID, inv.ID)
	return err
}

func (r *SQLRepository) HasTransaction(ctx context.Context, invoiceID int64) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounting_transactions WHERE invoice_id = $1)`, invoiceID)
}

func (r *SQLRepository) CreateTransaction(ctx context.Context, inv *PaymentInvoice, value decimal.Decimal, userBurden bool) error {
	var regID *int64
	if inv.Typ == TypeRegistration {
		regID = inv.RegID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounting_transactions (invoice_id, registration_id, value, user_burden)
		VALUES ($1, $2, $3, $4)
	`, inv.ID, regID, value, userBurden)
	return err
}

func (r *SQLRepository) HasPayment(ctx context.Context, invoiceID int64) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounting_payments WHERE invoice_id = $1)`, invoiceID)
}

// CreateRegistrationPayment records the settled money and bumps the
// registration's payment counter in one transaction.
func (r *SQLRepository) CreateRegistrationPayment(ctx context.Context, inv *PaymentInvoice) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounting_payments (kind, value, member_id, assoc_id, registration_id, invoice_id)
		VALUES ('money', $1, $2, $3, $4, $5)
	`, inv.Gross, inv.MemberID, inv.AssocID, inv.RegID, inv.ID)
	if err != nil {
		return err
	}

	if inv.RegID != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE registrations SET num_payments = num_payments + 1 WHERE id = $1`,
			*inv.RegID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) HasMembershipItem(ctx context.Context, invoiceID int64) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounting_memberships WHERE invoice_id = $1)`, invoiceID)
}

func (r *SQLRepository) CreateMembershipItem(ctx context.Context, inv *PaymentInvoice, year int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounting_memberships (member_id, assoc_id, invoice_id, year, value)
		VALUES ($1, $2, $3, $4, $5)
	`, inv.MemberID, inv.AssocID, inv.ID, year, inv.Gross)
	return err
}

func (r *SQLRepository) HasDonation(ctx context.Context, invoiceID int64) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounting_donations WHERE invoice_id = $1)`, invoiceID)
}

func (r *SQLRepository) CreateDonation(ctx context.Context, inv *PaymentInvoice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounting_donations (member_id, assoc_id, invoice_id, value, descr)
		VALUES ($1, $2, $3, $4, $5)
	`, inv.MemberID, inv.AssocID, inv.ID, inv.Gross, inv.Causal)
	return err
}

func (r *SQLRepository) HasCollectionGift(ctx context.Context, invoiceID int64) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounting_collections WHERE invoice_id = $1)`, invoiceID)
}

func (r *SQLRepository) CreateCollectionGift(ctx context.Context, inv *PaymentInvoice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounting_collections (member_id, assoc_id, invoice_id, coll_id, value)
		VALUES ($1, $2, $3, $4, $5)
	`, inv.MemberID, inv.AssocID, inv.ID, inv.CollectionID, inv.Gross)
	return err
}
