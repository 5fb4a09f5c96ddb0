package accounting

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The first quota is expected within a short grace window of signing up.
const firstQuotaGraceDays = 8

func (s *Service) daysSince(t time.Time) int {
	return int(s.now().Sub(t).Hours() / 24)
}

func (s *Service) daysUntil(t time.Time) int {
	return int(t.Sub(s.now()).Hours() / 24)
}

// paymentDeadline counts down from offset: the clock starts at the
// registration date, or at the membership date when the member joined
// later. Negative means overdue.
func (s *Service) paymentDeadline(reg *Registration, membership *Membership, offset int) int {
	base := s.daysSince(reg.Created)
	if membership != nil && membership.Date != nil && membership.Date.After(reg.Created) {
		base = s.daysSince(*membership.Date)
	}
	return offset - base
}

// quotaCheck splits the total into reg.Quotas equal fractions and finds the
// first one that is due inside the alert horizon. The last quota always
// claims the full remaining balance so rounding never strands cents.
func (s *Service) quotaCheck(reg *Registration, ev *Event, membership *Membership, cfg Config) {
	n := reg.Quotas
	if n <= 0 {
		n = 1
	}

	alertDays := cfg.alertDays()
	daysToEvent := s.daysUntil(ev.StartDate)
	fraction := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
	cumulative := decimal.Zero
	deadlineSet := false

	for i := 1; i <= n; i++ {
		cumulative = cumulative.Add(fraction)

		var deadline int
		if i == 1 {
			deadline = s.paymentDeadline(reg, membership, firstQuotaGraceDays)
		} else {
			deadline = daysToEvent * (n - (i - 1)) / n
		}

		if !deadlineSet {
			reg.Deadline = deadline
			deadlineSet = true
		}

		if deadline > alertDays {
			continue
		}

		var due decimal.Decimal
		if i == n {
			due = reg.TotalDue.Sub(reg.TotalPaid)
		} else {
			due = reg.TotalDue.Mul(cumulative).Floor().Sub(reg.TotalPaid)
		}
		if !due.IsPositive() {
			continue
		}

		reg.Quota = due
		reg.Deadline = deadline
		return
	}
}

// installmentCheck walks the event's configured installment rows in order,
// accumulating how much should have been paid by each deadline. A row with
// no amount stands for the final installment and pulls in the whole total.
// With no applicable row, the full balance is due immediately.
func (s *Service) installmentCheck(ctx context.Context, reg *Registration, ev *Event, membership *Membership, cfg Config) error {
	rows, err := s.repo.Installments(ctx, ev.ID)
	if err != nil {
		return err
	}

	alertDays := cfg.alertDays()
	running := decimal.Zero
	matched := false

	for _, row := range rows {
		if !installmentApplies(row, reg.TicketID) {
			continue
		}
		matched = true

		var deadline int
		switch {
		case row.DaysDeadline != nil:
			deadline = s.paymentDeadline(reg, membership, *row.DaysDeadline)
		case row.DateDeadline != nil:
			deadline = s.daysUntil(*row.DateDeadline)
		}

		if row.Amount.Valid {
			running = running.Add(row.Amount.Decimal)
		} else {
			running = reg.TotalDue
		}
		if running.GreaterThan(reg.TotalDue) {
			running = reg.TotalDue
		}

		due := running.Sub(reg.TotalPaid)
		if !due.IsPositive() {
			continue
		}
		if deadline > alertDays {
			continue
		}

		reg.Quota = due
		reg.Deadline = deadline
		return nil
	}

	if !matched {
		due := reg.TotalDue.Sub(reg.TotalPaid)
		if due.IsNegative() {
			due = decimal.Zero
		}
		reg.Quota = due
		reg.Deadline = s.daysSince(reg.Created)
	}
	return nil
}

// installmentApplies reports whether the row's ticket restriction admits the
// registration's ticket. An empty restriction admits everything.
func installmentApplies(row Installment, ticketID *int64) bool {
	if strings.TrimSpace(row.Tickets) == "" {
		return true
	}
	if ticketID == nil {
		return false
	}
	for _, part := range strings.Split(row.Tickets, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		if id == *ticketID {
			return true
		}
	}
	return false
}
