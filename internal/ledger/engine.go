// Package ledger implements the escrowed pari-mutuel betting engine: market
// lifecycle, participant admission with duplicate prevention, payout
// computation, and settlement orchestration against an external funds
// transfer service.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
)

const (
	maxQuestionLen = 200
	maxOptionLen   = 100
	minOptions     = 2
	maxOptions     = 5

	// marketLockTTL bounds how long a distributed per-market lock may
	// outlive a crashed holder.
	marketLockTTL = 90 * time.Second
)

// Config carries the engine's fixed operating parameters. They are passed in
// at construction; the engine holds no ambient mutable configuration.
type Config struct {
	// EscrowAddress receives every wager; payouts and refunds are sent from
	// it using EscrowCredential.
	EscrowAddress    string
	EscrowCredential domain.Credential

	// FeePercent of the total pool is retained by the custodian on
	// settlement, e.g. 5 for a 5% fee.
	FeePercent decimal.Decimal

	// MinWager is the smallest allowed fixed wager amount per market.
	MinWager decimal.Decimal

	// SupportedTokens is the enumerated token set markets may be priced in.
	SupportedTokens []string

	// Admins are principal refs allowed to settle or cancel any market.
	Admins []string

	// MaxLockDuration caps relative lock times on new markets.
	MaxLockDuration time.Duration
}

// Engine is the ledger engine. All mutations of a given market are
// serialized through a per-market mutex; the triple-checked duplicate guard
// in PlaceEntry is kept on top of that as defense in depth, since the store
// below has no transactional locking of its own.
type Engine struct {
	cfg      Config
	store    domain.MarketStore
	wallets  domain.WalletDirectory
	transfer domain.TransferService
	locks    domain.LockManager // optional distributed layer
	events   domain.EventSink   // optional
	logger   *slog.Logger

	admins map[string]bool
	tokens map[string]bool

	mu        sync.Mutex
	marketMus map[int64]*sync.Mutex

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockManager layers a distributed per-market lock over the in-process
// one, for deployments running several ledger instances on shared storage.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Engine) { e.locks = lm }
}

// WithEventSink installs a sink receiving market lifecycle events.
func WithEventSink(sink domain.EventSink) Option {
	return func(e *Engine) { e.events = sink }
}

// withClock overrides the engine clock in tests.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine with all required collaborators.
func NewEngine(
	cfg Config,
	store domain.MarketStore,
	wallets domain.WalletDirectory,
	transfer domain.TransferService,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		cfg:       cfg,
		store:     store,
		wallets:   wallets,
		transfer:  transfer,
		logger:    logger.With(slog.String("component", "ledger")),
		admins:    make(map[string]bool, len(cfg.Admins)),
		tokens:    make(map[string]bool, len(cfg.SupportedTokens)),
		marketMus: make(map[int64]*sync.Mutex),
		now:       time.Now,
	}
	for _, a := range cfg.Admins {
		e.admins[a] = true
	}
	for _, t := range cfg.SupportedTokens {
		e.tokens[strings.ToLower(t)] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// marketMu returns the mutex serializing mutations of one market.
func (e *Engine) marketMu(id int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.marketMus[id]
	if !ok {
		mu = &sync.Mutex{}
		e.marketMus[id] = mu
	}
	return mu
}

// lockMarket takes the in-process market mutex and, when a lock manager is
// configured, the distributed market lock on top of it.
func (e *Engine) lockMarket(ctx context.Context, id int64) (func(), error) {
	mu := e.marketMu(id)
	mu.Lock()

	if e.locks == nil {
		return mu.Unlock, nil
	}

	unlock, err := e.locks.Acquire(ctx, fmt.Sprintf("market:%d", id), marketLockTTL)
	if err != nil {
		mu.Unlock()
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.NewFault(domain.ErrLockHeld, "market %d is busy, try again", id)
		}
		return nil, fmt.Errorf("ledger: acquire market lock %d: %w", id, err)
	}
	return func() {
		unlock()
		mu.Unlock()
	}, nil
}

// CreateMarketRequest carries the validated-at-the-boundary inputs for a new
// market. LockIn is "never" for creator-controlled close, or a relative
// duration like "30m", "2h", "1d".
type CreateMarketRequest struct {
	Question    string
	Options     []string
	CreatorRef  string
	WagerAmount decimal.Decimal
	Token       string
	LockIn      string
}

// CreateMarket validates the request, assigns the next market id, and
// persists a fresh open market with no participants.
func (e *Engine) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	if strings.TrimSpace(req.Question) == "" {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "question is required")
	}
	if len(req.Question) > maxQuestionLen {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "question too long (max %d characters)", maxQuestionLen)
	}

	options := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if len(o) > maxOptionLen {
			return domain.Market{}, domain.NewFault(domain.ErrValidation, "option text too long (max %d characters)", maxOptionLen)
		}
		options = append(options, o)
	}
	if len(options) < minOptions {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "at least %d options required", minOptions)
	}
	if len(options) > maxOptions {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "at most %d options allowed", maxOptions)
	}

	if req.WagerAmount.LessThanOrEqual(decimal.Zero) {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "wager amount must be positive")
	}
	if req.WagerAmount.LessThan(e.cfg.MinWager) {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "minimum wager is %s", e.cfg.MinWager.String())
	}

	token := strings.ToLower(strings.TrimSpace(req.Token))
	if !e.tokens[token] {
		return domain.Market{}, domain.NewFault(domain.ErrValidation, "unsupported token %q (supported: %s)", req.Token, strings.Join(e.cfg.SupportedTokens, ", "))
	}

	now := e.now()
	lockTime, err := e.parseLockIn(req.LockIn, now)
	if err != nil {
		return domain.Market{}, err
	}

	id, err := e.store.NextID(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: reserve market id: %w", err)
	}

	m := domain.Market{
		ID:           id,
		Question:     req.Question,
		Options:      options,
		CreatorRef:   req.CreatorRef,
		WagerAmount:  req.WagerAmount,
		Token:        token,
		LockTime:     lockTime,
		Participants: []domain.Entry{},
		State:        domain.StateOpen,
		CreatedAt:    now,
	}
	if err := e.store.Put(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: persist market %d: %w", id, err)
	}

	e.logger.InfoContext(ctx, "market created",
		slog.Int64("market_id", id),
		slog.String("token", token),
		slog.String("wager", req.WagerAmount.String()),
		slog.Int("options", len(options)),
	)
	e.publish(ctx, domain.Event{Type: "market_created", MarketID: id, At: now, Payload: m})
	return m, nil
}

// parseLockIn turns "never" or "<n>m|h|d" into an absolute lock time.
func (e *Engine) parseLockIn(s string, now time.Time) (*time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "never" {
		return nil, nil
	}
	if len(s) < 2 {
		return nil, domain.NewFault(domain.ErrValidation, "invalid time limit %q (use e.g. 30m, 2h, 1d or never)", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return nil, domain.NewFault(domain.ErrValidation, "invalid time limit %q (use e.g. 30m, 2h, 1d or never)", s)
	}

	var d time.Duration
	switch s[len(s)-1] {
	case 'm':
		d = time.Duration(n) * time.Minute
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	default:
		return nil, domain.NewFault(domain.ErrValidation, "invalid time unit in %q (use m, h or d)", s)
	}

	if e.cfg.MaxLockDuration > 0 && d > e.cfg.MaxLockDuration {
		return nil, domain.NewFault(domain.ErrValidation, "time limit exceeds maximum of %s", e.cfg.MaxLockDuration)
	}

	t := now.Add(d)
	return &t, nil
}

// PlaceEntry admits one wager into a market. The wager amount and token are
// fixed by the market; optionIndex is 0-based. The escrow transfer is the
// only suspend point, so the duplicate guard runs three times: on the first
// read, against a fresh read just before the transfer is dispatched, and a
// final time inside the store's atomic update after the transfer committed.
func (e *Engine) PlaceEntry(ctx context.Context, marketID int64, principalRef, displayName string, optionIndex int) (domain.Entry, error) {
	unlock, err := e.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Entry{}, err
	}
	defer unlock()

	m, err := e.store.Get(ctx, marketID)
	if err != nil {
		return domain.Entry{}, err
	}

	now := e.now()
	if m.IsLocked(now) {
		return domain.Entry{}, domain.NewFault(domain.ErrMarketLocked, "market %d stopped accepting entries at %s", marketID, m.LockTime.UTC().Format(time.RFC3339))
	}
	if m.State != domain.StateOpen {
		return domain.Entry{}, domain.NewFault(domain.ErrMarketClosed, "market %d is %s", marketID, m.State)
	}
	if optionIndex < 0 || optionIndex >= len(m.Options) {
		return domain.Entry{}, domain.NewFault(domain.ErrValidation, "option must be between 1 and %d", len(m.Options))
	}
	if m.HasEntry(principalRef) {
		return domain.Entry{}, domain.NewFault(domain.ErrAlreadyEntered, "you already placed a wager on market %d", marketID)
	}

	wallet, err := e.wallets.Resolve(ctx, principalRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Entry{}, domain.NewFault(domain.ErrNotFound, "principal %s has no wallet on file", principalRef)
		}
		return domain.Entry{}, fmt.Errorf("ledger: resolve wallet for %s: %w", principalRef, err)
	}

	// Second checkpoint: re-read right before money moves.
	m, err = e.store.Get(ctx, marketID)
	if err != nil {
		return domain.Entry{}, err
	}
	if m.State != domain.StateOpen {
		return domain.Entry{}, domain.NewFault(domain.ErrMarketClosed, "market %d is %s", marketID, m.State)
	}
	if m.HasEntry(principalRef) {
		return domain.Entry{}, domain.NewFault(domain.ErrAlreadyEntered, "you already placed a wager on market %d", marketID)
	}

	memo := fmt.Sprintf("Bet #%d - Option %d", marketID, optionIndex+1)
	tx, err := e.transfer.Transfer(ctx, wallet.Credential, e.cfg.EscrowAddress, m.WagerAmount, m.Token, memo)
	if err != nil {
		// No state was touched; the call is safe to retry.
		return domain.Entry{}, err
	}

	entry := domain.Entry{
		PrincipalRef: principalRef,
		DisplayName:  displayName,
		Amount:       m.WagerAmount,
		OptionIndex:  optionIndex,
		Token:        m.Token,
		TransferRef:  tx.TxRef,
		PlacedAt:     e.now(),
	}

	// Final checkpoint runs inside the store's atomic update: if a duplicate
	// slipped in while the transfer was in flight, the completed transfer is
	// surfaced for reconciliation and no second entry is appended.
	_, err = e.store.Update(ctx, marketID, func(cur *domain.Market) error {
		if cur.State != domain.StateOpen {
			return &domain.Fault{Err: domain.ErrMarketClosed, Reason: fmt.Sprintf("market %d closed while the transfer was in flight", marketID), FundsMoved: true, TxRef: tx.TxRef}
		}
		if cur.HasEntry(principalRef) {
			return &domain.Fault{Err: domain.ErrAlreadyEntered, Reason: "duplicate wager prevented; the completed transfer stays in escrow for reconciliation", FundsMoved: true, TxRef: tx.TxRef}
		}
		cur.Participants = append(cur.Participants, entry)
		return nil
	})
	if err != nil {
		var f *domain.Fault
		if errors.As(err, &f) && f.FundsMoved {
			e.logger.ErrorContext(ctx, "entry transfer committed without a ledger entry",
				slog.Int64("market_id", marketID),
				slog.String("principal", principalRef),
				slog.String("tx_ref", tx.TxRef),
				slog.String("reason", f.Reason),
			)
			return domain.Entry{}, err
		}
		if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrNotFound) {
			// The escrow received funds but the ledger write failed.
			return domain.Entry{}, &domain.Fault{
				Err:        domain.ErrStorage,
				Reason:     fmt.Sprintf("wager transfer %s committed but the ledger could not record it; contact support", tx.TxRef),
				FundsMoved: true,
				TxRef:      tx.TxRef,
			}
		}
		return domain.Entry{}, err
	}

	e.logger.InfoContext(ctx, "entry placed",
		slog.Int64("market_id", marketID),
		slog.String("principal", principalRef),
		slog.Int("option", optionIndex),
		slog.String("tx_ref", tx.TxRef),
	)
	e.publish(ctx, domain.Event{Type: "entry_placed", MarketID: marketID, At: entry.PlacedAt, Payload: entry})
	return entry, nil
}

// SettlementResult is what Settle returns: the closed market and its audit
// record. On a partial settlement both the result and an ErrPartialSettlement
// fault are returned; the market is closed and the failed payouts are a
// manual follow-up, never an automatic retry.
type SettlementResult struct {
	Market domain.Market
	Record domain.SettlementRecord
}

// Settle closes a market by declaring the winning option and distributing
// payouts from escrow in one atomic batch transfer. Locked markets may still
// be settled; only new entries are blocked by locking.
func (e *Engine) Settle(ctx context.Context, marketID int64, winningOption int, requestedBy, requestedByName string) (SettlementResult, error) {
	unlock, err := e.lockMarket(ctx, marketID)
	if err != nil {
		return SettlementResult{}, err
	}
	defer unlock()

	m, err := e.store.Get(ctx, marketID)
	if err != nil {
		return SettlementResult{}, err
	}
	if err := e.authorizeControl(&m, requestedBy); err != nil {
		return SettlementResult{}, err
	}
	if m.State != domain.StateOpen {
		return SettlementResult{}, domain.NewFault(domain.ErrMarketClosed, "market %d is %s", marketID, m.State)
	}
	if winningOption < 0 || winningOption >= len(m.Options) {
		return SettlementResult{}, domain.NewFault(domain.ErrValidation, "winning option must be between 1 and %d", len(m.Options))
	}

	plan := computePayouts(&m, winningOption, e.cfg.FeePercent)
	record := domain.SettlementRecord{
		RecordID:      uuid.New().String(),
		WinningOption: winningOption,
		TotalPool:     plan.totalPool,
		Fee:           plan.fee,
		FeePercent:    e.cfg.FeePercent,
		PayoutPool:    plan.payoutPool,
		PerWinner:     plan.perWinner,
		NoWinners:     len(plan.winners) == 0,
		SettledBy:     settledByLabel(&m, requestedBy, requestedByName, e.admins),
		SettledAt:     e.now(),
	}

	// Trivial settlements move no funds: an empty market closes with zero
	// fee, and with no winners the whole pool (fee included) already sits in
	// escrow, so nothing needs to be sent anywhere.
	if len(plan.winners) == 0 {
		closed, err := e.closeMarket(ctx, marketID, func(cur *domain.Market) {
			cur.State = domain.StateSettled
			cur.WinningOption = &winningOption
			cur.Settlement = &record
		})
		if err != nil {
			return SettlementResult{}, err
		}
		e.logger.InfoContext(ctx, "market settled without payouts",
			slog.Int64("market_id", marketID),
			slog.Int("participants", len(m.Participants)),
			slog.Bool("no_winners", len(m.Participants) > 0),
		)
		e.publish(ctx, domain.Event{Type: "market_settled", MarketID: marketID, At: record.SettledAt, Payload: record})
		return SettlementResult{Market: closed, Record: record}, nil
	}

	recipients, paid, failed := e.prepareRecipients(ctx, plan.winners, plan.perWinner, m.Token)
	record.Failed = failed
	if len(recipients) == 0 {
		// Nothing could be prepared: total failure, market stays open and
		// funds stay safely in escrow.
		return SettlementResult{}, domain.NewFault(domain.ErrTransferFailed, "no payout recipient could be prepared; market %d remains open", marketID)
	}

	memo := fmt.Sprintf("Betting Payouts - %d winners", len(recipients))
	batch, err := e.transfer.BatchTransfer(ctx, e.cfg.EscrowCredential, recipients, memo)
	if err != nil {
		// Zero successes: never record a half-applied settlement. The market
		// stays open and the whole call is retryable.
		return SettlementResult{}, err
	}

	record.TxRef = batch.TxRef
	record.Paid, record.Failed = reconcileBatch(paid, failed, batch)

	closed, err := e.closeMarket(ctx, marketID, func(cur *domain.Market) {
		cur.State = domain.StateSettled
		cur.WinningOption = &winningOption
		cur.Settlement = &record
	})
	if err != nil {
		return SettlementResult{}, &domain.Fault{
			Err:        domain.ErrStorage,
			Reason:     fmt.Sprintf("payouts committed in %s but the settlement could not be recorded; contact support", batch.TxRef),
			FundsMoved: true,
			TxRef:      batch.TxRef,
		}
	}

	e.logger.InfoContext(ctx, "market settled",
		slog.Int64("market_id", marketID),
		slog.Int("winners_paid", len(record.Paid)),
		slog.Int("failures", len(record.Failed)),
		slog.String("tx_ref", batch.TxRef),
		slog.String("fee", record.Fee.String()),
	)
	e.publish(ctx, domain.Event{Type: "market_settled", MarketID: marketID, At: record.SettledAt, Payload: record})

	result := SettlementResult{Market: closed, Record: record}
	if len(record.Failed) > 0 {
		// Money moved, so the market closes regardless; the failures are an
		// out-of-band support task.
		return result, &domain.Fault{
			Err:        domain.ErrPartialSettlement,
			Reason:     fmt.Sprintf("%d of %d payouts failed and were recorded for manual follow-up", len(record.Failed), len(record.Failed)+len(record.Paid)),
			FundsMoved: true,
			TxRef:      batch.TxRef,
		}
	}
	return result, nil
}

// CancellationResult is what Cancel returns: the cancelled market and its
// audit record. Same partial-failure contract as Settle.
type CancellationResult struct {
	Market domain.Market
	Record domain.CancellationRecord
}

// Cancel voids a market and refunds every participant their own wager in
// their own token. Refunds are per-entry, not pool-derived, so markets that
// ever held mixed-token entries refund correctly.
func (e *Engine) Cancel(ctx context.Context, marketID int64, requestedBy, requestedByName string) (CancellationResult, error) {
	unlock, err := e.lockMarket(ctx, marketID)
	if err != nil {
		return CancellationResult{}, err
	}
	defer unlock()

	m, err := e.store.Get(ctx, marketID)
	if err != nil {
		return CancellationResult{}, err
	}
	if err := e.authorizeControl(&m, requestedBy); err != nil {
		return CancellationResult{}, err
	}
	if m.State != domain.StateOpen {
		return CancellationResult{}, domain.NewFault(domain.ErrMarketClosed, "market %d is %s", marketID, m.State)
	}

	record := domain.CancellationRecord{
		RecordID:    uuid.New().String(),
		CancelledBy: settledByLabel(&m, requestedBy, requestedByName, e.admins),
		CancelledAt: e.now(),
	}

	if len(m.Participants) == 0 {
		closed, err := e.closeMarket(ctx, marketID, func(cur *domain.Market) {
			cur.State = domain.StateCancelled
			cur.Cancellation = &record
		})
		if err != nil {
			return CancellationResult{}, err
		}
		e.publish(ctx, domain.Event{Type: "market_cancelled", MarketID: marketID, At: record.CancelledAt, Payload: record})
		return CancellationResult{Market: closed, Record: record}, nil
	}

	var recipients []domain.Recipient
	var refunds []domain.PayoutResult
	var failed []domain.PayoutFailure
	for _, p := range m.Participants {
		wallet, err := e.wallets.Resolve(ctx, p.PrincipalRef)
		if err != nil {
			failed = append(failed, domain.PayoutFailure{
				PrincipalRef: p.PrincipalRef,
				DisplayName:  p.DisplayName,
				Reason:       "wallet not found",
			})
			continue
		}
		recipients = append(recipients, domain.Recipient{
			Address: wallet.Address,
			Amount:  p.Amount,
			Token:   p.Token,
		})
		refunds = append(refunds, domain.PayoutResult{
			PrincipalRef: p.PrincipalRef,
			DisplayName:  p.DisplayName,
			Address:      wallet.Address,
			Amount:       p.Amount,
			Token:        p.Token,
		})
	}
	record.Failed = failed
	if len(recipients) == 0 {
		return CancellationResult{}, domain.NewFault(domain.ErrTransferFailed, "no refund recipient could be prepared; market %d remains open", marketID)
	}

	memo := fmt.Sprintf("Bet Cancellation Refunds - %d participants", len(recipients))
	batch, err := e.transfer.BatchTransfer(ctx, e.cfg.EscrowCredential, recipients, memo)
	if err != nil {
		// Total failure: market stays open and retryable.
		return CancellationResult{}, err
	}

	record.TxRef = batch.TxRef
	record.Refunded, record.Failed = reconcileBatch(refunds, failed, batch)

	closed, err := e.closeMarket(ctx, marketID, func(cur *domain.Market) {
		cur.State = domain.StateCancelled
		cur.Cancellation = &record
	})
	if err != nil {
		return CancellationResult{}, &domain.Fault{
			Err:        domain.ErrStorage,
			Reason:     fmt.Sprintf("refunds committed in %s but the cancellation could not be recorded; contact support", batch.TxRef),
			FundsMoved: true,
			TxRef:      batch.TxRef,
		}
	}

	e.logger.InfoContext(ctx, "market cancelled",
		slog.Int64("market_id", marketID),
		slog.Int("refunded", len(record.Refunded)),
		slog.Int("failures", len(record.Failed)),
		slog.String("tx_ref", batch.TxRef),
	)
	e.publish(ctx, domain.Event{Type: "market_cancelled", MarketID: marketID, At: record.CancelledAt, Payload: record})

	result := CancellationResult{Market: closed, Record: record}
	if len(record.Failed) > 0 {
		return result, &domain.Fault{
			Err:        domain.ErrPartialSettlement,
			Reason:     fmt.Sprintf("%d refunds failed and were recorded for manual follow-up", len(record.Failed)),
			FundsMoved: true,
			TxRef:      batch.TxRef,
		}
	}
	return result, nil
}

// GetMarket returns one market by id.
func (e *Engine) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	return e.store.Get(ctx, id)
}

// ListActiveMarkets returns every market still accepting the creator's
// control (open, whether or not entry-locked).
func (e *Engine) ListActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	return e.store.ListActive(ctx)
}

// GetBalance resolves the principal's custodial address and queries the
// transfer service for its balance in the given token.
func (e *Engine) GetBalance(ctx context.Context, principalRef, token string) (domain.Balance, error) {
	wallet, err := e.wallets.Resolve(ctx, principalRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Balance{}, domain.NewFault(domain.ErrNotFound, "principal %s has no wallet on file", principalRef)
		}
		return domain.Balance{}, fmt.Errorf("ledger: resolve wallet for %s: %w", principalRef, err)
	}
	return e.transfer.Balance(ctx, wallet.Address, token)
}

// EscrowBalance reports the custodial escrow balance for a token.
func (e *Engine) EscrowBalance(ctx context.Context, token string) (domain.Balance, error) {
	return e.transfer.Balance(ctx, e.cfg.EscrowAddress, token)
}

// authorizeControl checks the settle/cancel permission: the requester must
// be the market creator or an admin. A creator ref that does not parse as a
// positive numeric principal id (e.g. a free-text name from the web front
// end) leaves the market under admin-only control.
func (e *Engine) authorizeControl(m *domain.Market, requestedBy string) error {
	if e.admins[requestedBy] {
		return nil
	}
	creatorID, err := strconv.ParseInt(strings.TrimSpace(m.CreatorRef), 10, 64)
	if err != nil || creatorID <= 0 {
		return domain.NewFault(domain.ErrPermissionDenied, "market %d has no resolvable creator; only admins may control it", m.ID)
	}
	requesterID, err := strconv.ParseInt(strings.TrimSpace(requestedBy), 10, 64)
	if err != nil || requesterID != creatorID {
		return domain.NewFault(domain.ErrPermissionDenied, "only the market creator or an admin may do this")
	}
	return nil
}

// closeMarket transitions the market out of StateOpen under the store's
// atomic update, re-verifying that no concurrent call closed it first.
func (e *Engine) closeMarket(ctx context.Context, id int64, apply func(*domain.Market)) (domain.Market, error) {
	return e.store.Update(ctx, id, func(cur *domain.Market) error {
		if cur.State != domain.StateOpen {
			return domain.NewFault(domain.ErrMarketClosed, "market %d is %s", id, cur.State)
		}
		apply(cur)
		return nil
	})
}

// prepareRecipients resolves winner wallets into a multisend recipient list.
// Winners without a wallet on file become recorded failures rather than
// settlement blockers.
func (e *Engine) prepareRecipients(ctx context.Context, winners []domain.Entry, perWinner decimal.Decimal, token string) ([]domain.Recipient, []domain.PayoutResult, []domain.PayoutFailure) {
	var recipients []domain.Recipient
	var paid []domain.PayoutResult
	var failed []domain.PayoutFailure
	for _, w := range winners {
		wallet, err := e.wallets.Resolve(ctx, w.PrincipalRef)
		if err != nil {
			e.logger.WarnContext(ctx, "winner wallet not resolvable",
				slog.String("principal", w.PrincipalRef),
				slog.String("error", err.Error()),
			)
			failed = append(failed, domain.PayoutFailure{
				PrincipalRef: w.PrincipalRef,
				DisplayName:  w.DisplayName,
				Reason:       "wallet not found",
			})
			continue
		}
		recipients = append(recipients, domain.Recipient{
			Address: wallet.Address,
			Amount:  perWinner,
			Token:   token,
		})
		paid = append(paid, domain.PayoutResult{
			PrincipalRef: w.PrincipalRef,
			DisplayName:  w.DisplayName,
			Address:      wallet.Address,
			Amount:       perWinner,
			Token:        token,
		})
	}
	return recipients, paid, failed
}

// reconcileBatch splits the prepared payout list into actually-paid and
// failed recipients using the per-recipient results from the transfer
// service, and stamps the batch tx ref on the successes.
func reconcileBatch(prepared []domain.PayoutResult, preFailed []domain.PayoutFailure, batch domain.BatchResult) ([]domain.PayoutResult, []domain.PayoutFailure) {
	failedByAddr := make(map[string]string, len(batch.Failed))
	for _, f := range batch.Failed {
		failedByAddr[f.Address] = f.Reason
	}

	paid := prepared[:0]
	failed := preFailed
	for _, p := range prepared {
		if reason, ok := failedByAddr[p.Address]; ok {
			failed = append(failed, domain.PayoutFailure{
				PrincipalRef: p.PrincipalRef,
				DisplayName:  p.DisplayName,
				Reason:       reason,
			})
			continue
		}
		p.TxRef = batch.TxRef
		paid = append(paid, p)
	}
	return paid, failed
}

// settledByLabel mirrors the audit attribution of the original system:
// "Creator: name" when the creator acts, "Admin: name" otherwise.
func settledByLabel(m *domain.Market, requestedBy, requestedByName string, admins map[string]bool) string {
	name := requestedByName
	if name == "" {
		name = requestedBy
	}
	if admins[requestedBy] && strings.TrimSpace(m.CreatorRef) != strings.TrimSpace(requestedBy) {
		return "Admin: " + name
	}
	return "Creator: " + name
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, ev)
}
