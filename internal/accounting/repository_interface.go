package accounting

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	GetRegistration(ctx context.Context, id int64) (*Registration, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
	TicketPrice(ctx context.Context, ticketID int64) (decimal.Decimal, error)
	OptionsTotal(ctx context.Context, registrationID int64) (decimal.Decimal, error)
	DiscountTotal(ctx context.Context, memberID, eventID int64) (decimal.Decimal, error)
	Payments(ctx context.Context, registrationID int64, filter PaymentFilter) ([]Payment, error)
	UserBurdenTotal(ctx context.Context, registrationID int64) (decimal.Decimal, error)
	GetOrCreateMembership(ctx context.Context, memberID, assocID int64) (*Membership, error)
	Installments(ctx context.Context, eventID int64) ([]Installment, error)
	SaveAccounting(ctx context.Context, reg *Registration) error
	ApplyTokensCredits(ctx context.Context, reg *Registration, assocID int64, remaining decimal.Decimal) (decimal.Decimal, error)
	ReverseOverpay(ctx context.Context, registrationID int64, overpay decimal.Decimal) error
	RecomputeMemberBalances(ctx context.Context, memberID, assocID int64) (tokens, credit decimal.Decimal, err error)
	OpenRegistrations(ctx context.Context, memberID, assocID int64) ([]int64, error)
	SetCancellation(ctx context.Context, registrationID int64) error
	CreateOther(ctx context.Context, item *Other) error
}
