package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"larpledger/internal/logger"
	"larpledger/internal/metrics"
	"larpledger/internal/money"
)

// Service computes registration balances and dispatches into the
// token/credit ledger and the payment-plan scheduler. All feature flags and
// config arrive through Config; the service holds no ambient state.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RegistrationTotal computes what the registration owes: ticket price for
// every seat, plus pay-what-you-want, plus chosen paid options, minus
// discounts (unless the signup was redeemed as a gift), plus surcharge.
// The result is clamped to zero and stored on reg.TotalDue.
func (s *Service) RegistrationTotal(ctx context.Context, reg *Registration) (decimal.Decimal, error) {
	total := decimal.Zero

	if reg.TicketID != nil {
		price, err := s.repo.TicketPrice(ctx, *reg.TicketID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ticket price: %w", err)
		}
		total = price.Mul(decimal.NewFromInt(int64(1 + reg.AdditionalSeats)))
	}

	total = total.Add(reg.PayWhat)

	options, err := s.repo.OptionsTotal(ctx, reg.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("options total: %w", err)
	}
	total = total.Add(options)

	// Gift registrations never receive discounts.
	if reg.RedeemCode == nil {
		discount, err := s.repo.DiscountTotal(ctx, reg.MemberID, reg.EventID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("discount total: %w", err)
		}
		total = total.Sub(discount)
	}

	total = total.Add(reg.Surcharge)

	if total.IsNegative() {
		total = decimal.Zero
	}

	reg.TotalDue = total
	return total, nil
}

// RegistrationPayments sums the registration's payment rows and annotates
// reg with a per-kind breakdown. The filter decides whether soft-deleted
// rows count; the default includes them.
func (s *Service) RegistrationPayments(ctx context.Context, reg *Registration, filter PaymentFilter) (decimal.Decimal, error) {
	rows, err := s.repo.Payments(ctx, reg.ID, filter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments: %w", err)
	}

	total := decimal.Zero
	breakdown := make(map[PaymentKind]decimal.Decimal)
	for _, row := range rows {
		total = total.Add(row.Value)
		breakdown[row.Kind] = breakdown[row.Kind].Add(row.Value)
	}
	reg.PaymentsByKind = breakdown
	return total, nil
}

// RegistrationTransactions sums the processor fees the payer must cover on
// top of the amount. These do not count as payment toward the registration.
func (s *Service) RegistrationTransactions(ctx context.Context, reg *Registration) (decimal.Decimal, error) {
	return s.repo.UserBurdenTotal(ctx, reg.ID)
}

// UpdateRegistrationAccounting recomputes the registration's derived
// accounting fields in place. The caller persists them afterwards with a
// targeted update (SaveAccounting); nothing here writes the registration.
func (s *Service) UpdateRegistrationAccounting(ctx context.Context, reg *Registration, cfg Config) error {
	ev, err := s.repo.GetEvent(ctx, reg.EventID)
	if err != nil {
		return err
	}
	if ev.Status == EventCancelled || ev.Status == EventDone {
		return nil
	}

	if _, err := s.RegistrationTotal(ctx, reg); err != nil {
		return err
	}

	paid, err := s.RegistrationPayments(ctx, reg, PaymentFilter{})
	if err != nil {
		return err
	}
	burden, err := s.RegistrationTransactions(ctx, reg)
	if err != nil {
		return err
	}
	reg.TotalPaid = money.RoundToNearestCent(paid.Sub(burden))

	reg.Quota = decimal.Zero
	reg.Deadline = 0
	reg.Alert = false

	// Overpayment hands prepaid value back before anything else; the paid
	// total is then re-read because reversal mutates the ledger.
	if overpay := reg.TotalPaid.Sub(reg.TotalDue); overpay.IsPositive() {
		if _, err := s.HandleTokensCredits(ctx, reg, overpay.Neg(), cfg); err != nil {
			return err
		}
		paid, err = s.RegistrationPayments(ctx, reg, PaymentFilter{})
		if err != nil {
			return err
		}
		reg.TotalPaid = money.RoundToNearestCent(paid.Sub(burden))
		return nil
	}

	if money.IsPaidOff(reg.TotalDue, reg.TotalPaid) {
		return nil
	}
	if reg.CancellationDate != nil {
		return nil
	}

	membership, err := s.repo.GetOrCreateMembership(ctx, reg.MemberID, cfg.AssocID)
	if err != nil {
		return err
	}

	// No dunning before the membership is approved.
	if cfg.Features.Membership && !cfg.Features.MembershipExempt {
		if membership.Status != MembershipAccepted {
			return nil
		}
	}

	remaining := reg.TotalDue.Sub(reg.TotalPaid)
	leftover, err := s.HandleTokensCredits(ctx, reg, remaining, cfg)
	if err != nil {
		return err
	}
	if applied := remaining.Sub(leftover); applied.IsPositive() {
		reg.TotalPaid = reg.TotalPaid.Add(applied)
		if money.IsPaidOff(reg.TotalDue, reg.TotalPaid) {
			return nil
		}
	}

	if cfg.Features.InstallmentPlan {
		if err := s.installmentCheck(ctx, reg, ev, membership, cfg); err != nil {
			return err
		}
	} else {
		s.quotaCheck(reg, ev, membership, cfg)
	}

	if reg.Quota.LessThanOrEqual(money.PaidTolerance) {
		reg.Quota = decimal.Zero
		return nil
	}

	reg.Alert = reg.Deadline < cfg.alertDays()
	return nil
}

// Recompute is the explicit entry point called after any change that can
// affect a registration's balance. It loads, recalculates, stamps the
// payment-completed date and persists the derived fields.
func (s *Service) Recompute(ctx context.Context, registrationID int64, cfg Config) (*Registration, error) {
	reg, err := s.repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	if err := s.UpdateRegistrationAccounting(ctx, reg, cfg); err != nil {
		return nil, err
	}

	if money.IsPaidOff(reg.TotalDue, reg.TotalPaid) && reg.TotalDue.IsPositive() {
		if reg.PaymentDate == nil {
			now := s.now()
			reg.PaymentDate = &now
		}
	} else {
		reg.PaymentDate = nil
	}

	if err := s.repo.SaveAccounting(ctx, reg); err != nil {
		return nil, err
	}
	metrics.RecordRecompute()
	return reg, nil
}

// HandleTokensCredits gates the prepaid-balance ledger. A positive remaining
// balance draws from tokens and credit; a negative one (overpayment) gives
// value back, credit rows first. Returns the balance still owed.
func (s *Service) HandleTokensCredits(ctx context.Context, reg *Registration, remaining decimal.Decimal, cfg Config) (decimal.Decimal, error) {
	if !cfg.Features.TokenCredit || cfg.TokenCreditDisabled {
		return remaining, nil
	}

	if remaining.IsPositive() {
		leftover, err := s.repo.ApplyTokensCredits(ctx, reg, cfg.AssocID, remaining)
		if err != nil {
			return remaining, err
		}
		if applied := remaining.Sub(leftover); applied.IsPositive() {
			metrics.RecordTokenCredit("prepaid", "use")
			logger.Info("prepaid balance applied",
				"registration", reg.ID, "applied", applied.String())
		}
		return leftover, nil
	}

	if remaining.IsNegative() {
		if err := s.repo.ReverseOverpay(ctx, reg.ID, remaining.Neg()); err != nil {
			return remaining, err
		}
		metrics.RecordTokenCredit("prepaid", "reverse")
		logger.Info("overpayment reversed",
			"registration", reg.ID, "amount", remaining.Neg().String())
		// Reversal mutates the rows the membership balances are derived
		// from; rebuild them so the returned value is spendable again. The
		// cascade skips this registration, whose own pass re-reads the
		// ledger right after.
		if err := s.updateTokenCredit(ctx, reg.MemberID, cfg, reg.ID); err != nil {
			return remaining, err
		}
	}
	return remaining, nil
}

// UpdateTokenCredit rebuilds a member's prepaid balances from the full
// ledger and re-runs accounting for every registration the change can
// touch. Called after any token/credit grant, refund or payment mutation.
func (s *Service) UpdateTokenCredit(ctx context.Context, memberID int64, cfg Config) error {
	return s.updateTokenCredit(ctx, memberID, cfg, 0)
}

// skipRegID breaks the cycle when the rebuild is triggered from inside a
// registration's own accounting pass.
func (s *Service) updateTokenCredit(ctx context.Context, memberID int64, cfg Config, skipRegID int64) error {
	tokens, credit, err := s.repo.RecomputeMemberBalances(ctx, memberID, cfg.AssocID)
	if err != nil {
		return fmt.Errorf("recompute balances: %w", err)
	}
	logger.Debug("member balances recomputed",
		"member", memberID, "tokens", tokens.String(), "credit", credit.String())

	ids, err := s.repo.OpenRegistrations(ctx, memberID, cfg.AssocID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == skipRegID {
			continue
		}
		if _, err := s.Recompute(ctx, id, cfg); err != nil {
			return fmt.Errorf("recompute registration %d: %w", id, err)
		}
	}
	return nil
}
