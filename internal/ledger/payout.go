package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// payoutPlan is the money math for one settlement, computed before any funds
// move. All arithmetic stays in exact decimals; conversion to the 6-digit
// wire format happens only when recipients are handed to the transfer
// service, so rounding loss is bounded to one smallest unit per winner and
// accrues to the custodian.
type payoutPlan struct {
	totalPool  decimal.Decimal
	fee        decimal.Decimal
	payoutPool decimal.Decimal
	perWinner  decimal.Decimal
	winners    []domain.Entry
}

// computePayouts partitions participants by the winning option and splits
// the pool: fee = totalPool * feePercent / 100, the remainder divided evenly
// among winners. With no winners the whole pool less nothing stays in
// escrow and the fee is still recorded against it.
func computePayouts(m *domain.Market, winningOption int, feePercent decimal.Decimal) payoutPlan {
	plan := payoutPlan{
		totalPool:  m.TotalPool(),
		fee:        decimal.Zero,
		payoutPool: decimal.Zero,
		perWinner:  decimal.Zero,
	}
	if len(m.Participants) == 0 {
		return plan
	}

	for _, e := range m.Participants {
		if e.OptionIndex == winningOption {
			plan.winners = append(plan.winners, e)
		}
	}

	plan.fee = plan.totalPool.Mul(feePercent).Div(hundred)
	if len(plan.winners) == 0 {
		return plan
	}

	plan.payoutPool = plan.totalPool.Sub(plan.fee)
	plan.perWinner = plan.payoutPool.Div(decimal.NewFromInt(int64(len(plan.winners))))
	return plan
}
