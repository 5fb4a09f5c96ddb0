package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes how value reached a registration.
type PaymentKind string

const (
	PaymentMoney  PaymentKind = "money"
	PaymentToken  PaymentKind = "token"
	PaymentCredit PaymentKind = "credit"
)

// OtherKind classifies catch-all ledger rows: prepaid grants, refunds and
// credits issued on cancellation.
type OtherKind string

const (
	OtherToken       OtherKind = "token"
	OtherCredit      OtherKind = "credit"
	OtherRefund      OtherKind = "refund"
	OtherCreditGrant OtherKind = "credit_grant"
)

type EventStatus string

const (
	EventStart     EventStatus = "start"
	EventShow      EventStatus = "show"
	EventDone      EventStatus = "done"
	EventCancelled EventStatus = "cancelled"
)

type MembershipStatus string

const (
	MembershipEmpty     MembershipStatus = "empty"
	MembershipSubmitted MembershipStatus = "submitted"
	MembershipAccepted  MembershipStatus = "accepted"
	MembershipRejected  MembershipStatus = "rejected"
)

type Event struct {
	ID        int64       `db:"id" json:"id"`
	AssocID   int64       `db:"assoc_id" json:"assoc_id"`
	Name      string      `db:"name" json:"name"`
	Status    EventStatus `db:"status" json:"status"`
	StartDate time.Time   `db:"start_date" json:"start_date"`
}

// Registration is a member's signup for one event run. The accounting fields
// (TotalDue, TotalPaid, Quota, Deadline, Alert) are derived and overwritten
// on every recomputation.
type Registration struct {
	ID               int64           `db:"id" json:"id"`
	EventID          int64           `db:"event_id" json:"event_id"`
	MemberID         int64           `db:"member_id" json:"member_id"`
	TicketID         *int64          `db:"ticket_id" json:"ticket_id,omitempty"`
	Created          time.Time       `db:"created" json:"created"`
	CancellationDate *time.Time      `db:"cancellation_date" json:"cancellation_date,omitempty"`
	PaymentDate      *time.Time      `db:"payment_date" json:"payment_date,omitempty"`
	RedeemCode       *string         `db:"redeem_code" json:"redeem_code,omitempty"`
	AdditionalSeats  int             `db:"additional_seats" json:"additional_seats"`
	PayWhat          decimal.Decimal `db:"pay_what" json:"pay_what"`
	Surcharge        decimal.Decimal `db:"surcharge" json:"surcharge"`
	Quotas           int             `db:"quotas" json:"quotas"`
	NumPayments      int             `db:"num_payments" json:"num_payments"`

	TotalDue  decimal.Decimal `db:"total_due" json:"total_due"`
	TotalPaid decimal.Decimal `db:"total_paid" json:"total_paid"`
	Quota     decimal.Decimal `db:"quota" json:"quota"`
	Deadline  int             `db:"deadline" json:"deadline"`
	Alert     bool            `db:"alert" json:"alert"`

	// Per-kind payment breakdown, filled as a side effect of summing
	// payments. Not persisted.
	PaymentsByKind map[PaymentKind]decimal.Decimal `db:"-" json:"-"`
}

// Membership carries the per (member, association) prepaid balances. Tokens
// and Credit are always recomputed from ledger rows, never incremented.
type Membership struct {
	ID       int64            `db:"id" json:"id"`
	MemberID int64            `db:"member_id" json:"member_id"`
	AssocID  int64            `db:"assoc_id" json:"assoc_id"`
	Status   MembershipStatus `db:"status" json:"status"`
	Date     *time.Time       `db:"date" json:"date,omitempty"`
	Tokens   decimal.Decimal  `db:"tokens" json:"tokens"`
	Credit   decimal.Decimal  `db:"credit" json:"credit"`
}

// Payment is a ledger row recording money, tokens or credit applied to a
// registration. Hidden rows are soft-deleted.
type Payment struct {
	ID             int64           `db:"id" json:"id"`
	Kind           PaymentKind     `db:"kind" json:"kind"`
	Value          decimal.Decimal `db:"value" json:"value"`
	MemberID       int64           `db:"member_id" json:"member_id"`
	AssocID        int64           `db:"assoc_id" json:"assoc_id"`
	RegistrationID *int64          `db:"registration_id" json:"registration_id,omitempty"`
	InvoiceID      *int64          `db:"invoice_id" json:"invoice_id,omitempty"`
	Hidden         bool            `db:"hidden" json:"hidden"`
	Created        time.Time       `db:"created" json:"created"`
}

// Transaction is a processor-fee ledger row. UserBurden marks fees charged
// to the payer on top of the amount rather than absorbed by the organizer.
type Transaction struct {
	ID             int64           `db:"id" json:"id"`
	InvoiceID      *int64          `db:"invoice_id" json:"invoice_id,omitempty"`
	RegistrationID *int64          `db:"registration_id" json:"registration_id,omitempty"`
	Value          decimal.Decimal `db:"value" json:"value"`
	UserBurden     bool            `db:"user_burden" json:"user_burden"`
	Created        time.Time       `db:"created" json:"created"`
}

type Discount struct {
	ID       int64           `db:"id" json:"id"`
	MemberID int64           `db:"member_id" json:"member_id"`
	EventID  int64           `db:"event_id" json:"event_id"`
	Value    decimal.Decimal `db:"value" json:"value"`
}

type Other struct {
	ID          int64           `db:"id" json:"id"`
	MemberID    int64           `db:"member_id" json:"member_id"`
	AssocID     int64           `db:"assoc_id" json:"assoc_id"`
	EventID     *int64          `db:"event_id" json:"event_id,omitempty"`
	Kind        OtherKind       `db:"kind" json:"kind"`
	Value       decimal.Decimal `db:"value" json:"value"`
	Description string          `db:"descr" json:"descr"`
	Created     time.Time       `db:"created" json:"created"`
}

// Installment is an event-level payment plan row, consulted and never
// mutated by the scheduler. A NULL Amount means "the rest of the total".
type Installment struct {
	ID           int64               `db:"id" json:"id"`
	EventID      int64               `db:"event_id" json:"event_id"`
	Number       int                 `db:"number" json:"number"`
	Amount       decimal.NullDecimal `db:"amount" json:"amount"`
	DaysDeadline *int                `db:"days_deadline" json:"days_deadline,omitempty"`
	DateDeadline *time.Time          `db:"date_deadline" json:"date_deadline,omitempty"`
	// Comma-separated ticket ids this row applies to; empty means all.
	Tickets string `db:"tickets" json:"tickets"`
}

// Features are the per-association/event feature toggles the accounting
// core consults. They are resolved by the caller and passed in explicitly.
type Features struct {
	Payment    bool
	Membership bool
	// MembershipExempt marks association variants whose members are not
	// gated on membership approval before dunning.
	MembershipExempt bool
	TokenCredit      bool
	InstallmentPlan  bool
	EInvoice         bool
}

// Config is the explicit configuration context passed into every accounting
// entry point, replacing ambient per-event lookups.
type Config struct {
	AssocID  int64
	Features Features
	// TokenCreditDisabled opts a single event out of prepaid balances even
	// when the association enables them.
	TokenCreditDisabled bool
	// AlertDays is the horizon within which a pending quota raises the
	// registration alert flag. Zero means the default of 30.
	AlertDays int
}

const defaultAlertDays = 30

func (c Config) alertDays() int {
	if c.AlertDays <= 0 {
		return defaultAlertDays
	}
	return c.AlertDays
}

// PaymentFilter controls which payment rows participate in a registration's
// paid total. Soft-deleted rows are included by default: historical totals
// were computed that way and the policy is kept explicit rather than guessed.
type PaymentFilter struct {
	ExcludeHidden bool
}
