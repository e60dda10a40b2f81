package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
)

func marketWithEntries(wager decimal.Decimal, options []int) *domain.Market {
	m := &domain.Market{
		ID:          1,
		Options:     []string{"A", "B", "C"},
		WagerAmount: wager,
		Token:       "osmo",
		State:       domain.StateOpen,
	}
	for i, opt := range options {
		m.Participants = append(m.Participants, domain.Entry{
			PrincipalRef: string(rune('a' + i)),
			Amount:       wager,
			OptionIndex:  opt,
			Token:        "osmo",
		})
	}
	return m
}

func TestComputePayouts_SplitsPoolAfterFee(t *testing.T) {
	// Three entries of 1 each, options A, A, B. Settling on A: pool 3,
	// 5% fee 0.15, payout pool 2.85, 1.425 to each of the two winners.
	m := marketWithEntries(decimal.NewFromInt(1), []int{0, 0, 1})
	plan := computePayouts(m, 0, decimal.NewFromInt(5))

	if got, want := plan.totalPool, decimal.NewFromInt(3); !got.Equal(want) {
		t.Errorf("totalPool = %s, want %s", got, want)
	}
	if got, want := plan.fee, decimal.RequireFromString("0.15"); !got.Equal(want) {
		t.Errorf("fee = %s, want %s", got, want)
	}
	if got, want := plan.payoutPool, decimal.RequireFromString("2.85"); !got.Equal(want) {
		t.Errorf("payoutPool = %s, want %s", got, want)
	}
	if got, want := plan.perWinner, decimal.RequireFromString("1.425"); !got.Equal(want) {
		t.Errorf("perWinner = %s, want %s", got, want)
	}
	if len(plan.winners) != 2 {
		t.Errorf("winners = %d, want 2", len(plan.winners))
	}

	// Conservation: fee plus total payouts equals the pool exactly.
	paidOut := plan.perWinner.Mul(decimal.NewFromInt(int64(len(plan.winners))))
	if !plan.fee.Add(paidOut).Equal(plan.totalPool) {
		t.Errorf("fee %s + payouts %s != pool %s", plan.fee, paidOut, plan.totalPool)
	}
}

func TestComputePayouts_NoWinners(t *testing.T) {
	// Everyone picked B; settling on C leaves no winners. The fee is still
	// recorded against the pool that stays in escrow.
	m := marketWithEntries(decimal.NewFromInt(2), []int{1, 1})
	plan := computePayouts(m, 2, decimal.NewFromInt(5))

	if got, want := plan.totalPool, decimal.NewFromInt(4); !got.Equal(want) {
		t.Errorf("totalPool = %s, want %s", got, want)
	}
	if got, want := plan.fee, decimal.RequireFromString("0.2"); !got.Equal(want) {
		t.Errorf("fee = %s, want %s", got, want)
	}
	if len(plan.winners) != 0 {
		t.Errorf("winners = %d, want 0", len(plan.winners))
	}
	if !plan.payoutPool.IsZero() || !plan.perWinner.IsZero() {
		t.Errorf("payout figures should be zero with no winners: %s / %s", plan.payoutPool, plan.perWinner)
	}
}

func TestComputePayouts_EmptyMarket(t *testing.T) {
	m := marketWithEntries(decimal.NewFromInt(1), nil)
	plan := computePayouts(m, 0, decimal.NewFromInt(5))

	if !plan.totalPool.IsZero() || !plan.fee.IsZero() || !plan.perWinner.IsZero() {
		t.Errorf("empty market should produce all-zero plan: %+v", plan)
	}
}

func TestComputePayouts_FractionalWagers(t *testing.T) {
	// Pool 0.3 at 5% fee: fee 0.015, single winner takes 0.285 exactly.
	m := marketWithEntries(decimal.RequireFromString("0.1"), []int{0, 1, 1})
	plan := computePayouts(m, 0, decimal.NewFromInt(5))

	if got, want := plan.totalPool, decimal.RequireFromString("0.3"); !got.Equal(want) {
		t.Errorf("totalPool = %s, want %s", got, want)
	}
	if got, want := plan.perWinner, decimal.RequireFromString("0.285"); !got.Equal(want) {
		t.Errorf("perWinner = %s, want %s", got, want)
	}
}

func TestComputePayouts_ZeroFee(t *testing.T) {
	m := marketWithEntries(decimal.NewFromInt(1), []int{0, 1})
	plan := computePayouts(m, 0, decimal.Zero)

	if !plan.fee.IsZero() {
		t.Errorf("fee = %s, want 0", plan.fee)
	}
	if got, want := plan.perWinner, decimal.NewFromInt(2); !got.Equal(want) {
		t.Errorf("perWinner = %s, want %s", got, want)
	}
}
