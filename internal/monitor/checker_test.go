package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"priceflow/internal/config"
	"priceflow/internal/detect"
	"priceflow/internal/extract"
	"priceflow/internal/notify"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

type finishCall struct {
	id        int64
	lastError *string
}

type fakeItems struct {
	mu          sync.Mutex
	items       map[int64]storage.MonitoredItem
	beginDenied bool

	finishes      []finishCall
	priceUpdates  []decimal.Decimal
	stockUpdates  []bool
	availability  []bool
	beginRequests int
}

var _ storage.ItemStore = (*fakeItems)(nil)

func (f *fakeItems) GetItem(_ context.Context, id int64) (storage.MonitoredItem, error) {
	item, ok := f.items[id]
	if !ok {
		return storage.MonitoredItem{}, errors.New("item not found")
	}
	return item, nil
}

func (f *fakeItems) ListActiveItems(_ context.Context) ([]storage.MonitoredItem, error) {
	var out []storage.MonitoredItem
	for _, item := range f.items {
		if item.IsActive {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItems) TryBeginRefresh(_ context.Context, _ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginRequests++
	return !f.beginDenied, nil
}

func (f *fakeItems) FinishRefresh(_ context.Context, id int64, _ time.Time, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes = append(f.finishes, finishCall{id: id, lastError: lastError})
	return nil
}

func (f *fakeItems) UpdatePrice(_ context.Context, _ int64, price decimal.Decimal, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceUpdates = append(f.priceUpdates, price)
	return nil
}

func (f *fakeItems) UpdateStock(_ context.Context, _ int64, inStock bool, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockUpdates = append(f.stockUpdates, inStock)
	return nil
}

func (f *fakeItems) SetAvailability(_ context.Context, _ int64, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability = append(f.availability, available)
	return nil
}

type fakeObservations struct {
	appended []storage.PriceObservation
}

var _ storage.ObservationStore = (*fakeObservations)(nil)

func (f *fakeObservations) AppendObservation(_ context.Context, obs storage.PriceObservation) error {
	f.appended = append(f.appended, obs)
	return nil
}

func (f *fakeObservations) ListObservations(_ context.Context, _ int64, _ int) ([]storage.PriceObservation, error) {
	return nil, nil
}

func (f *fakeObservations) ListObservationsBetween(_ context.Context, _ int64, _, _ time.Time) ([]storage.PriceObservation, error) {
	return nil, nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	failures int
	capture  *page.Capture

	calls    int
	hostiles []bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string, hostile bool) (*page.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.hostiles = append(f.hostiles, hostile)
	if f.calls <= f.failures {
		return nil, errors.New("net::ERR_CONNECTION_RESET")
	}
	if f.capture == nil {
		return &page.Capture{Title: "Produit", Text: "contenu"}, nil
	}
	return f.capture, nil
}

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, _ storage.MonitoredItem, _ *page.Capture) (*extract.Result, error) {
	return f.result, f.err
}

type fakeClassifier struct {
	verdict detect.Classification
}

func (f *fakeClassifier) Classify(storage.MonitoredItem, *page.Capture, *extract.Result) detect.Classification {
	return f.verdict
}

type fakeNotifier struct {
	sent    []notify.Message
	sendErr error
}

func (f *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeResolver struct {
	notifier *fakeNotifier
}

func (f *fakeResolver) Resolve(context.Context, int64) (notify.Notifier, error) {
	if f.notifier == nil {
		return nil, nil
	}
	return f.notifier, nil
}

func testChecker(items *fakeItems, observations *fakeObservations, fetcher *fakeFetcher, extractor *fakeExtractor, classifier *fakeClassifier, resolver NotifierResolver) *Checker {
	checker := NewChecker(Options{
		Items:        items,
		Observations: observations,
		Fetcher:      fetcher,
		Extractor:    extractor,
		Classifier:   classifier,
		Notifiers:    resolver,
		Config: config.MonitorConfig{
			DefaultIntervalMinutes: 60,
			RiseNotifyPct:          5.0,
			RetryAttempts:          3,
			HostileRetryAttempts:   4,
			RetryBaseDelay:         time.Second,
		},
		Logger: zerolog.Nop(),
	})
	checker.sleep = func(context.Context, time.Duration) error { return nil }
	return checker
}

func committedVerdict(prev, next string, stock bool) detect.Classification {
	s := stock
	return detect.Classification{
		Outcome:     detect.OutcomeUpdated,
		CommitPrice: true,
		CommitStock: true,
		OldPrice:    dec(prev),
		NewPrice:    dec(next),
		NewStock:    &s,
	}
}

func TestCheckItemCommitsAndNotifies(t *testing.T) {
	channelID := int64(7)
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "Coussin", URL: "https://www.gifi.fr/p/coussin", IsActive: true, IsAvailable: true, CurrentPrice: dec("120"), ChannelID: &channelID},
	}}
	observations := &fakeObservations{}
	notifier := &fakeNotifier{}
	result := &extract.Result{Price: dec("95"), PriceConfidence: 0.95, InStockConfidence: 0.9}

	checker := testChecker(items, observations, &fakeFetcher{}, &fakeExtractor{result: result},
		&fakeClassifier{verdict: committedVerdict("120", "95", true)}, &fakeResolver{notifier: notifier})

	if err := checker.CheckItem(context.Background(), 1); err != nil {
		t.Fatalf("CheckItem 失败: %v", err)
	}

	if len(items.priceUpdates) != 1 || !items.priceUpdates[0].Equal(*dec("95")) {
		t.Errorf("price updates = %v", items.priceUpdates)
	}
	if len(items.stockUpdates) != 1 || !items.stockUpdates[0] {
		t.Errorf("stock updates = %v", items.stockUpdates)
	}
	if len(observations.appended) != 1 {
		t.Fatalf("应追加 1 条历史记录, got %d", len(observations.appended))
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("降价应发送通知, got %d", len(notifier.sent))
	}
	if notifier.sent[0].URL != "https://www.gifi.fr/p/coussin" {
		t.Errorf("notification url = %q", notifier.sent[0].URL)
	}
	if len(items.finishes) != 1 || items.finishes[0].lastError != nil {
		t.Errorf("成功的检查应清除 guard 且 last_error 为空: %+v", items.finishes)
	}
}

func TestCheckItemSkipsWhenAlreadyRefreshing(t *testing.T) {
	items := &fakeItems{
		items:       map[int64]storage.MonitoredItem{1: {ID: 1, Name: "X", URL: "https://example.com/p"}},
		beginDenied: true,
	}
	fetcher := &fakeFetcher{}

	checker := testChecker(items, &fakeObservations{}, fetcher, &fakeExtractor{}, &fakeClassifier{}, nil)

	if err := checker.CheckItem(context.Background(), 1); err != nil {
		t.Fatalf("guard 被占用时应静默返回: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("guard 未获取时不应抓取页面")
	}
	if len(items.finishes) != 0 {
		t.Errorf("guard 未获取时不应调用 FinishRefresh")
	}
}

func TestCheckItemGuardClearedOnFetchFailure(t *testing.T) {
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "X", URL: "https://example.com/p"},
	}}
	fetcher := &fakeFetcher{failures: 10}

	checker := testChecker(items, &fakeObservations{}, fetcher, &fakeExtractor{}, &fakeClassifier{}, nil)

	err := checker.CheckItem(context.Background(), 1)
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("err = %v, want ErrNavigation", err)
	}
	if fetcher.calls != 3 {
		t.Errorf("普通域名应重试 3 次, got %d", fetcher.calls)
	}
	if len(items.finishes) != 1 {
		t.Fatalf("失败后仍必须清除 guard")
	}
	if items.finishes[0].lastError == nil {
		t.Error("失败的检查应记录 last_error")
	}
}

func TestCheckItemHostileDomainRetries(t *testing.T) {
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "X", URL: "https://www.amazon.fr/dp/B0TEST12345"},
	}}
	fetcher := &fakeFetcher{failures: 10}

	checker := testChecker(items, &fakeObservations{}, fetcher, &fakeExtractor{}, &fakeClassifier{}, nil)

	if err := checker.CheckItem(context.Background(), 1); !errors.Is(err, ErrNavigation) {
		t.Fatalf("err = %v", err)
	}
	if fetcher.calls != 4 {
		t.Errorf("敌对域名应重试 4 次, got %d", fetcher.calls)
	}
	for _, hostile := range fetcher.hostiles {
		if !hostile {
			t.Fatal("amazon.fr 的抓取应带代理标记")
		}
	}
}

func TestCheckItemUnavailable(t *testing.T) {
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "X", URL: "https://example.com/p", IsAvailable: true},
	}}
	observations := &fakeObservations{}

	verdict := detect.Classification{Outcome: detect.OutcomeUnavailable, MarkUnavailable: true}
	checker := testChecker(items, observations, &fakeFetcher{}, &fakeExtractor{}, &fakeClassifier{verdict: verdict}, nil)

	err := checker.CheckItem(context.Background(), 1)
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("err = %v, want ErrProductUnavailable", err)
	}
	if len(items.availability) != 1 || items.availability[0] {
		t.Errorf("availability updates = %v", items.availability)
	}
	if len(items.stockUpdates) != 1 || items.stockUpdates[0] {
		t.Errorf("下架商品应强制记为无货: %v", items.stockUpdates)
	}
	if len(observations.appended) != 1 {
		t.Fatalf("下架也应留下审计记录")
	}
	obs := observations.appended[0]
	if obs.Price != nil || obs.PriceConfidence == nil || *obs.PriceConfidence != 0 {
		t.Errorf("审计记录应为零置信度空价格: %+v", obs)
	}
}

func TestCheckItemNotifyFailureDoesNotRollBack(t *testing.T) {
	channelID := int64(7)
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "X", URL: "https://example.com/p", IsAvailable: true, CurrentPrice: dec("50"), ChannelID: &channelID},
	}}
	notifier := &fakeNotifier{sendErr: errors.New("telegram api error")}
	result := &extract.Result{Price: dec("40"), PriceConfidence: 0.9}

	checker := testChecker(items, &fakeObservations{}, &fakeFetcher{}, &fakeExtractor{result: result},
		&fakeClassifier{verdict: committedVerdict("50", "40", true)}, &fakeResolver{notifier: notifier})

	if err := checker.CheckItem(context.Background(), 1); err != nil {
		t.Fatalf("通知失败不应使检查失败: %v", err)
	}
	if len(items.priceUpdates) != 1 {
		t.Error("通知失败不应回滚价格提交")
	}
}

func TestCheckItemUncertainRecordsHistoryOnly(t *testing.T) {
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "X", URL: "https://example.com/p", IsAvailable: true},
	}}
	observations := &fakeObservations{}
	result := &extract.Result{Price: dec("40"), PriceConfidence: 0.4}

	verdict := detect.Classification{
		Outcome:  detect.OutcomeUncertain,
		Reason:   "price confidence 0.40 below threshold 0.50",
		NewPrice: dec("40"),
	}
	checker := testChecker(items, observations, &fakeFetcher{}, &fakeExtractor{result: result}, &fakeClassifier{verdict: verdict}, nil)

	err := checker.CheckItem(context.Background(), 1)
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("err = %v, want ErrLowConfidence", err)
	}
	if len(items.priceUpdates) != 0 {
		t.Error("低置信度结果不应提交价格")
	}
	if len(observations.appended) != 1 {
		t.Error("低置信度结果仍应写入历史")
	}
	if items.finishes[0].lastError == nil {
		t.Error("uncertain 结果应记录 last_error")
	}
}

func TestBackoffDelayRange(t *testing.T) {
	base := 2 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		expected := base << (attempt - 1)
		for i := 0; i < 50; i++ {
			delay := backoffDelay(base, attempt)
			if delay < expected || delay > expected+expected/2 {
				t.Fatalf("attempt %d: delay %v 超出 [%v, %v]", attempt, delay, expected, expected+expected/2)
			}
		}
	}
}

func TestIsDue(t *testing.T) {
	checker := testChecker(&fakeItems{}, &fakeObservations{}, &fakeFetcher{}, &fakeExtractor{}, &fakeClassifier{}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !checker.isDue(storage.MonitoredItem{}, now) {
		t.Error("从未检查过的商品应立即到期")
	}

	recent := now.Add(-30 * time.Minute)
	if checker.isDue(storage.MonitoredItem{LastChecked: &recent}, now) {
		t.Error("30 分钟前检查过且默认间隔 60 分钟的商品不应到期")
	}

	if !checker.isDue(storage.MonitoredItem{LastChecked: &recent, CheckIntervalMinutes: 15}, now) {
		t.Error("商品自定义 15 分钟间隔应覆盖全局默认值")
	}

	old := now.Add(-61 * time.Minute)
	if !checker.isDue(storage.MonitoredItem{LastChecked: &old}, now) {
		t.Error("超过默认间隔的商品应到期")
	}
}

func TestCheckManyContinuesOnFailure(t *testing.T) {
	items := &fakeItems{items: map[int64]storage.MonitoredItem{
		1: {ID: 1, Name: "A", URL: "https://example.com/a"},
		2: {ID: 2, Name: "B", URL: "https://example.com/b"},
	}}
	checker := testChecker(items, &fakeObservations{}, &fakeFetcher{failures: 1}, &fakeExtractor{},
		&fakeClassifier{verdict: detect.Classification{Outcome: detect.OutcomeUpdated}}, nil)

	// id 3 does not exist; its failure must not cancel the batch.
	if err := checker.CheckMany(context.Background(), []int64{3, 1, 2}); err != nil {
		t.Fatalf("CheckMany 不应因单项失败而报错: %v", err)
	}
	if items.beginRequests != 2 {
		t.Errorf("存在的两个商品都应被检查, begin requests = %d", items.beginRequests)
	}
}
