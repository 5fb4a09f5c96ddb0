package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the invoice lifecycle. Checked and Confirmed are terminal:
// settlement has been applied and must never be applied again.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSubmitted Status = "submitted"
	StatusChecked   Status = "checked"
	StatusConfirmed Status = "confirmed"
)

// Settled reports whether the status carries an applied settlement.
func (s Status) Settled() bool {
	return s == StatusChecked || s == StatusConfirmed
}

type Type string

const (
	TypeRegistration Type = "registration"
	TypeMembership   Type = "membership"
	TypeDonate       Type = "donate"
	TypeCollection   Type = "collection"
)

type Method string

const (
	MethodPayPal   Method = "paypal"
	MethodStripe   Method = "stripe"
	MethodSumUp    Method = "sumup"
	MethodSatispay Method = "satispay"
	MethodRedsys   Method = "redsys"
	MethodWire     Method = "wire"
)

// PaymentInvoice is the pending or settled unit of an external payment,
// correlated with the gateway through Cod and, for providers that assign
// their own identifiers, KeyID.
type PaymentInvoice struct {
	ID           int64           `db:"id" json:"id"`
	Cod          string          `db:"cod" json:"cod"`
	AssocID      int64           `db:"assoc_id" json:"assoc_id"`
	MemberID     int64           `db:"member_id" json:"member_id"`
	Typ          Type            `db:"typ" json:"typ"`
	Method       Method          `db:"method" json:"method"`
	Status       Status          `db:"status" json:"status"`
	Gross        decimal.Decimal `db:"mc_gross" json:"mc_gross"`
	Fee          decimal.Decimal `db:"mc_fee" json:"mc_fee"`
	Causal       string          `db:"causal" json:"causal"`
	RegID        *int64          `db:"reg_id" json:"reg_id,omitempty"`
	CollectionID *int64          `db:"coll_id" json:"coll_id,omitempty"`
	TxnID        *string         `db:"txn_id" json:"txn_id,omitempty"`
	KeyID        *string         `db:"key_id" json:"key_id,omitempty"`
	Created      time.Time       `db:"created" json:"created"`
}
