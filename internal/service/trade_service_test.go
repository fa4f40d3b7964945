package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/papertrade/papertrade/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory fakes. fakeLedger mirrors the store's compare-and-swap contract:
// a commit carrying a stale version fails with ErrConcurrentModification and
// changes nothing.
// ---------------------------------------------------------------------------

type fakeAccount struct {
	balance domain.Cents
	version int64
}

type fakeLedger struct {
	mu       sync.Mutex
	accounts map[domain.UserID]*fakeAccount
	events   []domain.PositionEvent

	balanceReads int
	commitCalls  int

	// alwaysConflict makes every commit report a lost race.
	alwaysConflict bool
	// conflictFirst makes the first N commits report a lost race.
	conflictFirst int
	// commitErr, when set, makes every commit fail hard.
	commitErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: map[domain.UserID]*fakeAccount{}}
}

func (f *fakeLedger) addUser(id domain.UserID, balance domain.Cents) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id] = &fakeAccount{balance: balance}
}

func (f *fakeLedger) addEvent(e domain.PositionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID domain.UserID) (domain.Cents, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceReads++
	acct, ok := f.accounts[userID]
	if !ok {
		return 0, 0, domain.ErrUserNotFound
	}
	return acct.balance, acct.version, nil
}

func (f *fakeLedger) GetHolding(ctx context.Context, userID domain.UserID, symbol string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdingLocked(userID, symbol), nil
}

func (f *fakeLedger) holdingLocked(userID domain.UserID, symbol string) int64 {
	var qty int64
	for _, e := range f.events {
		if e.UserID == userID && e.Symbol == symbol {
			qty += e.Quantity
		}
	}
	return qty
}

func (f *fakeLedger) ListHoldings(ctx context.Context, userID domain.UserID) ([]domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	totals := map[string]int64{}
	for _, e := range f.events {
		if e.UserID == userID {
			totals[e.Symbol] += e.Quantity
		}
	}
	var out []domain.Holding
	for sym, qty := range totals {
		if qty != 0 {
			out = append(out, domain.Holding{Symbol: sym, Quantity: qty})
		}
	}
	return out, nil
}

func (f *fakeLedger) ListTrades(ctx context.Context, userID domain.UserID, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PositionEvent
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].UserID == userID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) CommitTrade(ctx context.Context, userID domain.UserID, newBalance domain.Cents, expectedVersion int64, event domain.PositionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commitLocked(userID, newBalance, expectedVersion); err != nil {
		return err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeLedger) CommitDeposit(ctx context.Context, userID domain.UserID, newBalance domain.Cents, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitLocked(userID, newBalance, expectedVersion)
}

func (f *fakeLedger) commitLocked(userID domain.UserID, newBalance domain.Cents, expectedVersion int64) error {
	f.commitCalls++
	if f.commitErr != nil {
		return f.commitErr
	}
	if f.alwaysConflict {
		return domain.ErrConcurrentModification
	}
	if f.conflictFirst > 0 {
		f.conflictFirst--
		return domain.ErrConcurrentModification
	}
	acct, ok := f.accounts[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if acct.version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	acct.balance = newBalance
	acct.version++
	return nil
}

func (f *fakeLedger) snapshot(userID domain.UserID) (domain.Cents, int64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := f.accounts[userID]
	return acct.balance, acct.version, len(f.events)
}

type fakeQuoter struct {
	prices map[string]domain.Cents
	err    error
}

func (q *fakeQuoter) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if q.err != nil {
		return domain.Quote{}, q.err
	}
	price, ok := q.prices[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrUnknownSymbol)
	}
	return domain.Quote{Symbol: symbol, UnitPrice: price, At: time.Now().UTC()}, nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allow, l.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTradeService(ledger domain.LedgerStore, quoter domain.Quoter) *TradeService {
	return NewTradeService(ledger, quoter, nil, 3, 10, testLogger())
}

// ---------------------------------------------------------------------------
// PlaceOrder
// ---------------------------------------------------------------------------

func TestPlaceOrderBuy(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000) // 10000.00
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	conf, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "nflx",
		Quantity: 10,
		Side:     domain.OrderSideBuy,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if conf.Symbol != "NFLX" {
		t.Errorf("Symbol = %q, want NFLX", conf.Symbol)
	}
	if conf.TotalCost != 50_000 {
		t.Errorf("TotalCost = %d, want 50000", conf.TotalCost)
	}
	if conf.NewBalance != 950_000 {
		t.Errorf("NewBalance = %d, want 950000", conf.NewBalance)
	}
	if conf.UpdatedHolding != 10 {
		t.Errorf("UpdatedHolding = %d, want 10", conf.UpdatedHolding)
	}
	if conf.OrderID == "" {
		t.Error("OrderID is empty")
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 950_000 {
		t.Errorf("stored balance = %d, want 950000", balance)
	}
	if version != 1 {
		t.Errorf("stored version = %d, want 1", version)
	}
	if events != 1 {
		t.Fatalf("events = %d, want 1", events)
	}
	e := ledger.events[0]
	if e.Kind != domain.TradeKindBought || e.Quantity != 10 || e.UnitPrice != 5000 {
		t.Errorf("event = %+v, want bought 10 @ 5000", e)
	}
}

func TestPlaceOrderSell(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 950_000)
	ledger.addEvent(domain.PositionEvent{UserID: userID, Symbol: "NFLX", Quantity: 10, UnitPrice: 5000, Kind: domain.TradeKindBought})
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 6000}}
	svc := newTestTradeService(ledger, quoter)

	conf, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 4,
		Side:     domain.OrderSideSell,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if conf.NewBalance != 950_000+4*6000 {
		t.Errorf("NewBalance = %d, want %d", conf.NewBalance, 950_000+4*6000)
	}
	if conf.UpdatedHolding != 6 {
		t.Errorf("UpdatedHolding = %d, want 6", conf.UpdatedHolding)
	}

	holding, _ := ledger.GetHolding(context.Background(), userID, "NFLX")
	if holding != 6 {
		t.Errorf("stored holding = %d, want 6", holding)
	}
	last := ledger.events[len(ledger.events)-1]
	if last.Kind != domain.TradeKindSold || last.Quantity != -4 {
		t.Errorf("event = %+v, want sold quantity -4", last)
	}
}

func TestPlaceOrderInsufficientShares(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 950_000)
	ledger.addEvent(domain.PositionEvent{UserID: userID, Symbol: "NFLX", Quantity: 10, UnitPrice: 5000, Kind: domain.TradeKindBought})
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 15,
		Side:     domain.OrderSideSell,
	})
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("PlaceOrder error = %v, want ErrInsufficientShares", err)
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 950_000 || version != 0 {
		t.Errorf("balance/version = %d/%d, want unchanged 950000/0", balance, version)
	}
	if events != 1 {
		t.Errorf("events = %d, want 1 (no new event)", events)
	}
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 950_000) // 9500.00
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	// 200 * 50.00 = 10000.00 > 9500.00
	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 200,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("PlaceOrder error = %v, want ErrInsufficientFunds", err)
	}

	balance, _, events := ledger.snapshot(userID)
	if balance != 950_000 {
		t.Errorf("balance = %d, want unchanged 950000", balance)
	}
	if events != 0 {
		t.Errorf("events = %d, want 0", events)
	}
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	quoter := &fakeQuoter{prices: map[string]domain.Cents{}}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "ZZZZ",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Fatalf("PlaceOrder error = %v, want ErrUnknownSymbol", err)
	}

	// Rejected at pricing, before any ledger access.
	ledger.mu.Lock()
	reads := ledger.balanceReads
	ledger.mu.Unlock()
	if reads != 0 {
		t.Errorf("balance reads = %d, want 0", reads)
	}
}

func TestPlaceOrderPricingUnavailable(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	quoter := &fakeQuoter{err: errors.New("connection refused")}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrPricingUnavailable) {
		t.Fatalf("PlaceOrder error = %v, want ErrPricingUnavailable", err)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	tests := []struct {
		name    string
		user    domain.UserID
		req     domain.OrderRequest
		wantErr error
	}{
		{"anonymous", domain.Anonymous, domain.OrderRequest{Symbol: "NFLX", Quantity: 1, Side: domain.OrderSideBuy}, domain.ErrUnauthenticated},
		{"zero quantity", userID, domain.OrderRequest{Symbol: "NFLX", Quantity: 0, Side: domain.OrderSideBuy}, domain.ErrInvalidQuantity},
		{"negative quantity", userID, domain.OrderRequest{Symbol: "NFLX", Quantity: -5, Side: domain.OrderSideSell}, domain.ErrInvalidQuantity},
		{"empty symbol", userID, domain.OrderRequest{Symbol: "  ", Quantity: 1, Side: domain.OrderSideBuy}, domain.ErrUnknownSymbol},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tc.user, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("PlaceOrder error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{Symbol: "NFLX", Quantity: 1, Side: "short"}); err == nil {
		t.Error("PlaceOrder with unknown side succeeded, want error")
	}

	if _, _, events := ledger.snapshot(userID); events != 0 {
		t.Errorf("events = %d, want 0 after rejected orders", events)
	}
}

func TestPlaceOrderUserNotFound(t *testing.T) {
	ledger := newFakeLedger()
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("PlaceOrder error = %v, want ErrUserNotFound", err)
	}
}

func TestPlaceOrderRateLimited(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := NewTradeService(ledger, quoter, &fakeLimiter{allow: false}, 3, 10, testLogger())

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("PlaceOrder error = %v, want ErrRateLimited", err)
	}
}

func TestPlaceOrderRetriesLostRace(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	ledger.conflictFirst = 2
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	conf, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if conf.NewBalance != 995_000 {
		t.Errorf("NewBalance = %d, want 995000", conf.NewBalance)
	}

	ledger.mu.Lock()
	calls := ledger.commitCalls
	ledger.mu.Unlock()
	if calls != 3 {
		t.Errorf("commit calls = %d, want 3", calls)
	}
}

func TestPlaceOrderRetryBudgetExhausted(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	ledger.alwaysConflict = true
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrTradeConflict) {
		t.Fatalf("PlaceOrder error = %v, want ErrTradeConflict", err)
	}

	ledger.mu.Lock()
	calls := ledger.commitCalls
	ledger.mu.Unlock()
	if calls != 3 {
		t.Errorf("commit calls = %d, want exactly 3", calls)
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 1_000_000 || version != 0 || events != 0 {
		t.Errorf("state = balance %d version %d events %d, want unchanged", balance, version, events)
	}
}

func TestPlaceOrderLedgerFailure(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	ledger.commitErr = errors.New("connection reset")
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	_, err := svc.PlaceOrder(context.Background(), userID, domain.OrderRequest{
		Symbol:   "NFLX",
		Quantity: 1,
		Side:     domain.OrderSideBuy,
	})
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("PlaceOrder error = %v, want ErrLedgerUnavailable", err)
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 1_000_000 || version != 0 || events != 0 {
		t.Errorf("state = balance %d version %d events %d, want unchanged", balance, version, events)
	}
}

// Two goroutines race to sell the same full position. Exactly one commit
// lands; the loser re-reads and sees the shares gone.
func TestPlaceOrderConcurrentSells(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 0)
	ledger.addEvent(domain.PositionEvent{UserID: userID, Symbol: "NFLX", Quantity: 10, UnitPrice: 5000, Kind: domain.TradeKindBought})
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	req := domain.OrderRequest{Symbol: "NFLX", Quantity: 10, Side: domain.OrderSideSell}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.PlaceOrder(context.Background(), userID, req)
		}(i)
	}
	wg.Wait()

	var successes, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInsufficientShares) || errors.Is(err, domain.ErrTradeConflict):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || rejected != 1 {
		t.Fatalf("successes = %d, rejected = %d, want 1 and 1", successes, rejected)
	}

	holding, _ := ledger.GetHolding(context.Background(), userID, "NFLX")
	if holding != 0 {
		t.Errorf("final holding = %d, want 0", holding)
	}
	balance, _, events := ledger.snapshot(userID)
	if balance != 50_000 {
		t.Errorf("final balance = %d, want 50000 (one sale of 10 @ 5000)", balance)
	}
	if events != 2 {
		t.Errorf("events = %d, want 2 (seed buy plus one sell)", events)
	}
}

// Buying and selling back at the same price returns the balance to its
// starting point. Cash plus position value is conserved throughout.
func TestPlaceOrderConservation(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 1_000_000)
	quoter := &fakeQuoter{prices: map[string]domain.Cents{"NFLX": 5000}}
	svc := newTestTradeService(ledger, quoter)

	ctx := context.Background()
	if _, err := svc.PlaceOrder(ctx, userID, domain.OrderRequest{Symbol: "NFLX", Quantity: 7, Side: domain.OrderSideBuy}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.PlaceOrder(ctx, userID, domain.OrderRequest{Symbol: "NFLX", Quantity: 7, Side: domain.OrderSideSell}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 1_000_000 {
		t.Errorf("balance = %d, want 1000000 after round trip", balance)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if events != 2 {
		t.Errorf("events = %d, want 2", events)
	}
	holding, _ := ledger.GetHolding(ctx, userID, "NFLX")
	if holding != 0 {
		t.Errorf("holding = %d, want 0", holding)
	}
}

// ---------------------------------------------------------------------------
// Deposit
// ---------------------------------------------------------------------------

func TestDeposit(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 950_000)
	svc := newTestTradeService(ledger, &fakeQuoter{})

	conf, err := svc.Deposit(context.Background(), userID, 50_000)
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if conf.NewBalance != 1_000_000 {
		t.Errorf("NewBalance = %d, want 1000000", conf.NewBalance)
	}

	balance, version, events := ledger.snapshot(userID)
	if balance != 1_000_000 {
		t.Errorf("stored balance = %d, want 1000000", balance)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if events != 0 {
		t.Errorf("events = %d, want 0 (deposits record no position event)", events)
	}
}

func TestDepositInvalidAmount(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 950_000)
	svc := newTestTradeService(ledger, &fakeQuoter{})

	for _, amount := range []domain.Cents{0, -100} {
		if _, err := svc.Deposit(context.Background(), userID, amount); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Deposit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}

	if _, err := svc.Deposit(context.Background(), domain.Anonymous, 100); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("anonymous Deposit error = %v, want ErrUnauthenticated", err)
	}
}

func TestDepositRetryBudgetExhausted(t *testing.T) {
	userID := uuid.New()
	ledger := newFakeLedger()
	ledger.addUser(userID, 0)
	ledger.alwaysConflict = true
	svc := newTestTradeService(ledger, &fakeQuoter{})

	if _, err := svc.Deposit(context.Background(), userID, 100); !errors.Is(err, domain.ErrTradeConflict) {
		t.Errorf("Deposit error = %v, want ErrTradeConflict", err)
	}
}
