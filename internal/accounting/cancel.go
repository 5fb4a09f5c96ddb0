package accounting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"larpledger/internal/logger"
)

// CancelRegistration soft-cancels a registration and converts the money
// already paid into a credit grant on the member's balance. The derived
// fields and the member's other registrations are recomputed afterwards.
func (s *Service) CancelRegistration(ctx context.Context, registrationID int64, cfg Config) error {
	reg, err := s.repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.CancellationDate != nil {
		return nil
	}

	if _, err := s.RegistrationPayments(ctx, reg, PaymentFilter{}); err != nil {
		return err
	}
	moneyPaid := reg.PaymentsByKind[PaymentMoney]

	if err := s.repo.SetCancellation(ctx, registrationID); err != nil {
		return err
	}

	if moneyPaid.GreaterThan(decimal.Zero) {
		item := &Other{
			MemberID:    reg.MemberID,
			AssocID:     cfg.AssocID,
			EventID:     &reg.EventID,
			Kind:        OtherCreditGrant,
			Value:       moneyPaid,
			Description: fmt.Sprintf("Credit for cancelled registration %d", reg.ID),
		}
		if err := s.repo.CreateOther(ctx, item); err != nil {
			return err
		}
		logger.Info("cancellation credit granted",
			"registration", reg.ID, "member", reg.MemberID, "value", moneyPaid.String())
	}

	// Rebuild the member's balances and cascade into their live
	// registrations, then settle this registration's derived fields.
	if err := s.UpdateTokenCredit(ctx, reg.MemberID, cfg); err != nil {
		return err
	}
	_, err = s.Recompute(ctx, registrationID, cfg)
	return err
}
