package invoice

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"larpledger/internal/accounting"
	"larpledger/internal/logger"
	"larpledger/internal/metrics"
	"larpledger/internal/money"
)

var ErrCodeExhausted = errors.New("could not generate a unique invoice code")

// Notifier is the deferred side-effect surface settlement fans out into:
// admin alerts, e-invoice emission and badge awards. Implementations queue,
// never block.
type Notifier interface {
	NotifyAdmins(ctx context.Context, subject, body string)
	QueueEInvoice(ctx context.Context, invoiceID int64)
	AwardBadge(ctx context.Context, memberID int64, badge string)
}

// FeeConfig carries the processor fee schedule resolved by the caller.
type FeeConfig struct {
	// Percent fee per payment method; zero or absent means no fee.
	Percent map[Method]decimal.Decimal
	// FeesToPayer adds processor fees on top of the amount instead of
	// absorbing them.
	FeesToPayer bool
}

func (f FeeConfig) percent(m Method) decimal.Decimal {
	if f.Percent == nil {
		return decimal.Zero
	}
	return f.Percent[m]
}

// Service owns the PaymentInvoice state machine and the idempotent
// settlement fan-out.
type Service struct {
	repo   Repository
	acct   *accounting.Service
	notify Notifier
	fees   FeeConfig
	now    func() time.Time
}

func NewService(repo Repository, acct *accounting.Service, notify Notifier, fees FeeConfig) *Service {
	return &Service{repo: repo, acct: acct, notify: notify, fees: fees, now: time.Now}
}

// UniqueCode generates a short random invoice code, retrying on collision.
// Exhaustion is an error: systemic collisions mean the code space is too
// small to keep ignoring.
func (s *Service) UniqueCode(ctx context.Context, length int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	for attempt := 0; attempt < 5; attempt++ {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		cod := string(buf)

		exists, err := s.repo.CodeExists(ctx, cod)
		if err != nil {
			return "", err
		}
		if !exists {
			return cod, nil
		}
	}
	return "", ErrCodeExhausted
}

// SetGrossFee fixes the invoice's gross and fee for its method. When fees
// are charged to the payer the amount is grossed up so the organizer still
// nets the requested sum.
func (s *Service) SetGrossFee(ctx context.Context, inv *PaymentInvoice, amount decimal.Decimal) error {
	pct := s.fees.percent(inv.Method)
	gross := amount
	if s.fees.FeesToPayer && pct.IsPositive() {
		gross = money.GrossUp(amount, pct)
	}
	fee := money.FeeAmount(gross, pct)

	inv.Gross = gross
	inv.Fee = fee
	return s.repo.SetGrossFee(ctx, inv.ID, gross, fee)
}

// CreateInvoice opens a new pending invoice for a payer-initiated payment.
func (s *Service) CreateInvoice(ctx context.Context, inv *PaymentInvoice, amount decimal.Decimal) error {
	cod, err := s.UniqueCode(ctx, 16)
	if err != nil {
		return err
	}
	inv.Cod = cod
	inv.Status = StatusCreated
	inv.Gross = amount

	if err := s.repo.Create(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	if err := s.SetGrossFee(ctx, inv, amount); err != nil {
		return err
	}
	metrics.RecordInvoiceCreated(string(inv.Method))
	return nil
}

// ProcessStatusChange is the idempotency gate: settlement fires only on the
// transition into a settled status from a non-settled one. Re-saving an
// already-settled invoice is a no-op, which makes repeated webhook
// deliveries harmless.
func (s *Service) ProcessStatusChange(ctx context.Context, inv *PaymentInvoice, prev Status, cfg accounting.Config) error {
	if prev.Settled() || !inv.Status.Settled() {
		return nil
	}
	_, err := s.PaymentReceived(ctx, inv, cfg)
	return err
}

// PaymentReceived converts a confirmed payment into ledger rows. Every
// branch checks for its row first, so replays cannot duplicate effects even
// if the status gate is bypassed. Always reports success; only storage
// failures surface.
func (s *Service) PaymentReceived(ctx context.Context, inv *PaymentInvoice, cfg accounting.Config) (bool, error) {
	pct := s.fees.percent(inv.Method)
	if pct.IsPositive() {
		has, err := s.repo.HasTransaction(ctx, inv.ID)
		if err != nil {
			return false, err
		}
		if !has {
			fee := money.FeeAmount(inv.Gross, pct)
			if err := s.repo.CreateTransaction(ctx, inv, fee, s.fees.FeesToPayer); err != nil {
				return false, err
			}
		}
	}

	switch inv.Typ {
	case TypeRegistration:
		has, err := s.repo.HasPayment(ctx, inv.ID)
		if err != nil {
			return false, err
		}
		if !has {
			if err := s.repo.CreateRegistrationPayment(ctx, inv); err != nil {
				return false, err
			}
			if cfg.Features.EInvoice {
				s.notify.QueueEInvoice(ctx, inv.ID)
			}
		}
		if inv.RegID != nil {
			if _, err := s.acct.Recompute(ctx, *inv.RegID, cfg); err != nil {
				return false, err
			}
		}

	case TypeMembership:
		has, err := s.repo.HasMembershipItem(ctx, inv.ID)
		if err != nil {
			return false, err
		}
		if !has {
			if err := s.repo.CreateMembershipItem(ctx, inv, s.now().Year()); err != nil {
				return false, err
			}
		}

	case TypeDonate:
		has, err := s.repo.HasDonation(ctx, inv.ID)
		if err != nil {
			return false, err
		}
		if !has {
			if err := s.repo.CreateDonation(ctx, inv); err != nil {
				return false, err
			}
			s.notify.AwardBadge(ctx, inv.MemberID, "donor")
		}

	case TypeCollection:
		has, err := s.repo.HasCollectionGift(ctx, inv.ID)
		if err != nil {
			return false, err
		}
		if !has {
			if err := s.repo.CreateCollectionGift(ctx, inv); err != nil {
				return false, err
			}
			s.notify.AwardBadge(ctx, inv.MemberID, "gifter")
		}
	}

	metrics.RecordSettlement(string(inv.Typ))
	logger.Info("invoice settled",
		"cod", inv.Cod, "type", inv.Typ, "gross", inv.Gross.String())
	return true, nil
}

// ReceivedMoney is the single canonical settlement entry point every
// gateway funnels into. Unknown codes alert the admins and report a
// graceful failure: webhooks are retried and arrive for stale codes, and
// neither case may crash the handler.
func (s *Service) ReceivedMoney(ctx context.Context, cod string, gross, fee *decimal.Decimal, txnID *string, cfg accounting.Config) (*PaymentInvoice, error) {
	inv, err := s.repo.GetByCode(ctx, cod)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			logger.Error("payment received for unknown invoice", "cod", cod)
			s.notify.NotifyAdmins(ctx, "Unmatched payment",
				fmt.Sprintf("A payment confirmation arrived for unknown invoice code %q.", cod))
			return nil, nil
		}
		return nil, err
	}

	if inv.Status.Settled() {
		return inv, nil
	}

	prev := inv.Status
	if gross != nil {
		inv.Gross = *gross
	}
	if fee != nil {
		inv.Fee = *fee
	}
	if txnID != nil {
		inv.TxnID = txnID
	}
	inv.Status = StatusChecked

	if err := s.repo.SaveSettlement(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.ProcessStatusChange(ctx, inv, prev, cfg); err != nil {
		return nil, err
	}
	return inv, nil
}
