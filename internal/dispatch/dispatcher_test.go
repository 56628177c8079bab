package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kucoinmanager/internal/exchange"
	"kucoinmanager/internal/models"
	"kucoinmanager/pkg/utils"
)

// ============================================================================
// МОКИ
// ============================================================================

type fakeClient struct {
	placeFn     func(ctx context.Context, params exchange.OrderParams) (string, error)
	cancelAllFn func(ctx context.Context, symbol string) ([]string, error)
	statsFn     func(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error)
}

func (f *fakeClient) PlaceOrder(ctx context.Context, params exchange.OrderParams) (string, error) {
	return f.placeFn(ctx, params)
}

func (f *fakeClient) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (f *fakeClient) CancelAllOrders(ctx context.Context, symbol string) ([]string, error) {
	if f.cancelAllFn != nil {
		return f.cancelAllFn(ctx, symbol)
	}
	return nil, nil
}

func (f *fakeClient) GetOpenOrderStats(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, symbol)
	}
	return &exchange.OpenOrderStats{}, nil
}

// factoryByKey раздаёт каждому аккаунту свой мок по API ключу
func factoryByKey(clients map[string]*fakeClient) ClientFactory {
	return func(creds exchange.Credentials, sandbox bool) ExchangeClient {
		return clients[creds.Key]
	}
}

func testTarget(name string) Target {
	return Target{
		Account: models.Account{ID: int64(len(name)), Name: name, APIKey: "key-" + name},
		Creds:   exchange.Credentials{Key: "key-" + name, Secret: "s", Passphrase: "p"},
	}
}

func testDispatcher(factory ClientFactory) *Dispatcher {
	logger := utils.InitLogger(utils.LogConfig{Level: "error", Format: "console", Output: "stderr"})
	cfg := Config{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	return NewDispatcher(factory, cfg, logger, nil)
}

func validIntent() OrderIntent {
	return OrderIntent{Symbol: "XBTUSDTM", Side: models.SideBuy, Size: "1", Price: "30000", Leverage: 10}
}

// ============================================================================
// РАЗМЕЩЕНИЕ
// ============================================================================

func TestPlaceOnAccounts_OneOutcomePerAccount(t *testing.T) {
	clients := map[string]*fakeClient{
		"key-a": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			return "ord-a", nil
		}},
		"key-b": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			return "", &exchange.ExchangeError{Status: 200, Code: "300018", Message: "Balance insufficient"}
		}},
		"key-c": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			return "ord-c", nil
		}},
	}

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), validIntent(),
		[]Target{testTarget("a"), testTarget("b"), testTarget("c")}, nil)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	// Провал аккаунта b не задел a и c
	if !outcomes[0].Succeeded() || outcomes[0].OrderID != "ord-a" {
		t.Errorf("account a: outcome = %+v, want success ord-a", outcomes[0])
	}
	if outcomes[1].Succeeded() {
		t.Error("account b: expected failure outcome")
	}
	if !outcomes[2].Succeeded() || outcomes[2].OrderID != "ord-c" {
		t.Errorf("account c: outcome = %+v, want success ord-c", outcomes[2])
	}
}

func TestPlaceOnAccounts_SharedClientOid(t *testing.T) {
	var mu sync.Mutex
	oids := make(map[string]bool)

	record := func(ctx context.Context, p exchange.OrderParams) (string, error) {
		mu.Lock()
		oids[p.ClientOid] = true
		mu.Unlock()
		return "ord", nil
	}
	clients := map[string]*fakeClient{
		"key-a": {placeFn: record},
		"key-b": {placeFn: record},
	}

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), validIntent(),
		[]Target{testTarget("a"), testTarget("b")}, nil)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	if len(oids) != 1 {
		t.Errorf("saw %d distinct clientOids, want 1 shared across accounts", len(oids))
	}
	if outcomes[0].ClientOid == "" || outcomes[0].ClientOid != outcomes[1].ClientOid {
		t.Errorf("outcome clientOids differ: %q vs %q", outcomes[0].ClientOid, outcomes[1].ClientOid)
	}
}

func TestPlaceOnAccounts_TimeoutExhaustsAttempts(t *testing.T) {
	calls := 0
	clients := map[string]*fakeClient{
		"key-a": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			calls++
			return "", exchange.ErrRequestTimeout
		}},
	}

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), validIntent(),
		[]Target{testTarget("a")}, nil)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	if calls != 4 {
		t.Errorf("made %d attempts, want exactly 4", calls)
	}
	if outcomes[0].Attempts != 4 {
		t.Errorf("outcome attempts = %d, want 4", outcomes[0].Attempts)
	}
	if outcomes[0].Succeeded() {
		t.Error("expected failure outcome after exhausted attempts")
	}
}

func TestPlaceOnAccounts_PermanentAbortsAfterFirstAttempt(t *testing.T) {
	calls := 0
	clients := map[string]*fakeClient{
		"key-a": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			calls++
			return "", &exchange.ExchangeError{Status: 401, Code: "400004", Message: "Invalid KC-API-PASSPHRASE"}
		}},
	}

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), validIntent(),
		[]Target{testTarget("a")}, nil)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("made %d attempts, want 1 (permanent failure)", calls)
	}
	if outcomes[0].Succeeded() {
		t.Error("expected failure outcome")
	}
}

func TestPlaceOnAccounts_LeverageCorrection(t *testing.T) {
	var leverages []int
	clients := map[string]*fakeClient{
		"key-a": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			leverages = append(leverages, p.Leverage)
			if p.Leverage > 20 {
				return "", &exchange.ExchangeError{
					Status: 200, Code: "100001",
					Message: "The leverage cannot be greater than 20",
				}
			}
			return "ord-a", nil
		}},
	}

	intent := validIntent()
	intent.Leverage = 100

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), intent,
		[]Target{testTarget("a")}, nil)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	if len(leverages) != 2 || leverages[0] != 100 || leverages[1] != 20 {
		t.Errorf("leverage sequence = %v, want [100 20]", leverages)
	}
	if !outcomes[0].Succeeded() {
		t.Fatalf("expected success after correction, got %v", outcomes[0].Err)
	}
	if outcomes[0].Leverage != 20 {
		t.Errorf("outcome leverage = %d, want corrected 20", outcomes[0].Leverage)
	}
}

// Коррекция плеча на одном аккаунте не видна воркеру другого
func TestPlaceOnAccounts_LeverageCorrectionIsPerAccount(t *testing.T) {
	var mu sync.Mutex
	leveragesB := []int{}

	clients := map[string]*fakeClient{
		"key-a": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			if p.Leverage > 20 {
				return "", &exchange.ExchangeError{
					Status: 200, Code: "100001",
					Message: "The leverage cannot be greater than 20",
				}
			}
			return "ord-a", nil
		}},
		"key-b": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			mu.Lock()
			leveragesB = append(leveragesB, p.Leverage)
			mu.Unlock()
			return "ord-b", nil
		}},
	}

	intent := validIntent()
	intent.Leverage = 100

	d := testDispatcher(factoryByKey(clients))
	if _, err := d.PlaceOnAccounts(context.Background(), intent,
		[]Target{testTarget("a"), testTarget("b")}, nil); err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	for _, lev := range leveragesB {
		if lev != 100 {
			t.Errorf("account b saw leverage %d, want original 100", lev)
		}
	}
}

// Итог быстрого аккаунта доставляется наблюдателю, пока медленный аккаунт
// ещё повторяет попытки
func TestPlaceOnAccounts_ObserverSeesFastAccountFirst(t *testing.T) {
	fastObserved := make(chan struct{})

	clients := map[string]*fakeClient{
		"key-slow": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			select {
			case <-fastObserved:
				return "ord-slow", nil
			case <-time.After(2 * time.Second):
				return "", errors.New("fast account outcome was never observed")
			}
		}},
		"key-fast": {placeFn: func(ctx context.Context, p exchange.OrderParams) (string, error) {
			return "ord-fast", nil
		}},
	}

	var once sync.Once
	observe := func(o Outcome) {
		if o.OrderID == "ord-fast" {
			once.Do(func() { close(fastObserved) })
		}
	}

	d := testDispatcher(factoryByKey(clients))
	outcomes, err := d.PlaceOnAccounts(context.Background(), validIntent(),
		[]Target{testTarget("slow"), testTarget("fast")}, observe)
	if err != nil {
		t.Fatalf("PlaceOnAccounts() error = %v", err)
	}

	for _, o := range outcomes {
		if !o.Succeeded() {
			t.Errorf("account %s failed: %v", o.Account.Name, o.Err)
		}
	}
}

func TestPlaceOnAccounts_Validation(t *testing.T) {
	d := testDispatcher(factoryByKey(nil))

	tests := []struct {
		name   string
		intent OrderIntent
	}{
		{"empty symbol", OrderIntent{Side: models.SideBuy, Size: "1", Leverage: 10}},
		{"bad side", OrderIntent{Symbol: "XBTUSDTM", Side: "hold", Size: "1", Leverage: 10}},
		{"empty size", OrderIntent{Symbol: "XBTUSDTM", Side: models.SideBuy, Leverage: 10}},
		{"zero leverage", OrderIntent{Symbol: "XBTUSDTM", Side: models.SideBuy, Size: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.PlaceOnAccounts(context.Background(), tt.intent, []Target{testTarget("a")}, nil)
			if !errors.Is(err, ErrInvalidIntent) {
				t.Errorf("error = %v, want ErrInvalidIntent", err)
			}
		})
	}

	if _, err := d.PlaceOnAccounts(context.Background(), validIntent(), nil, nil); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("error = %v, want ErrNoAccounts", err)
	}
}

// ============================================================================
// МАССОВЫЕ ОПЕРАЦИИ
// ============================================================================

func TestCancelAllOnAccounts(t *testing.T) {
	clients := map[string]*fakeClient{
		"key-a": {cancelAllFn: func(ctx context.Context, symbol string) ([]string, error) {
			return []string{"x", "y"}, nil
		}},
		"key-b": {cancelAllFn: func(ctx context.Context, symbol string) ([]string, error) {
			return nil, exchange.ErrRequestTimeout
		}},
	}

	d := testDispatcher(factoryByKey(clients))
	results, err := d.CancelAllOnAccounts(context.Background(), "XBTUSDTM",
		[]Target{testTarget("a"), testTarget("b")})
	if err != nil {
		t.Fatalf("CancelAllOnAccounts() error = %v", err)
	}

	if len(results[0].CancelledIDs) != 2 || results[0].Err != nil {
		t.Errorf("account a: %+v, want 2 cancelled ids", results[0])
	}
	if results[1].Err == nil {
		t.Error("account b: expected error")
	}
}

func TestCollectOpenOrderStats_FailuresAsData(t *testing.T) {
	calls := 0
	clients := map[string]*fakeClient{
		"key-a": {statsFn: func(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error) {
			return &exchange.OpenOrderStats{BuySize: 3, Currency: "USDT"}, nil
		}},
		"key-b": {statsFn: func(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error) {
			calls++
			return nil, exchange.ErrRequestTimeout
		}},
	}

	d := testDispatcher(factoryByKey(clients))
	results, err := d.CollectOpenOrderStats(context.Background(), "XBTUSDTM",
		[]Target{testTarget("a"), testTarget("b")})
	if err != nil {
		t.Fatalf("CollectOpenOrderStats() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want one per account", len(results))
	}
	if results[0].Err != nil || results[0].Stats.BuySize != 3 {
		t.Errorf("account a: %+v, want stats", results[0])
	}
	if results[1].Err == nil {
		t.Error("account b: expected error carried as data")
	}
	if results[1].Attempts < 2 {
		t.Errorf("account b retried %d times, want retries on timeout", results[1].Attempts)
	}
}
