package invoice

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, inv *PaymentInvoice) error
	GetByCode(ctx context.Context, cod string) (*PaymentInvoice, error)
	CodeExists(ctx context.Context, cod string) (bool, error)
	SetKeyID(ctx context.Context, id int64, keyID string) error
	SetGrossFee(ctx context.Context, id int64, gross, fee decimal.Decimal) error
	SaveSettlement(ctx context.Context, inv *PaymentInvoice) error

	HasTransaction(ctx context.Context, invoiceID int64) (bool, error)
	CreateTransaction(ctx context.Context, inv *PaymentInvoice, value decimal.Decimal, userBurden bool) error
	HasPayment(ctx context.Context, invoiceID int64) (bool, error)
	CreateRegistrationPayment(ctx context.Context, inv *PaymentInvoice) error
	HasMembershipItem(ctx context.Context, invoiceID int64) (bool, error)
	CreateMembershipItem(ctx context.Context, inv *PaymentInvoice, year int) error
	HasDonation(ctx context.Context, invoiceID int64) (bool, error)
	CreateDonation(ctx context.Context, inv *PaymentInvoice) error
	HasCollectionGift(ctx context.Context, invoiceID int64) (bool, error)
	CreateCollectionGift(ctx context.Context, inv *PaymentInvoice) error
}
