package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"priceflow/internal/config"
	"priceflow/internal/detect"
	"priceflow/internal/extract"
	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// Extractor fuses extraction strategies over one capture.
type Extractor interface {
	Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*extract.Result, error)
}

// Classifier turns a capture plus extraction into a commit decision.
type Classifier interface {
	Classify(item storage.MonitoredItem, capture *page.Capture, result *extract.Result) detect.Classification
}

// Options wires a Checker.
type Options struct {
	Items        storage.ItemStore
	Observations storage.ObservationStore
	Fetcher      PageFetcher
	Extractor    Extractor
	Classifier   Classifier
	Notifiers    NotifierResolver
	Config       config.MonitorConfig
	Logger       zerolog.Logger
}

// Checker runs the full check pipeline for monitored items.
type Checker struct {
	items        storage.ItemStore
	observations storage.ObservationStore
	fetcher      PageFetcher
	extractor    Extractor
	classifier   Classifier
	notifiers    NotifierResolver
	cfg          config.MonitorConfig
	logger       zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChecker builds a Checker.
func NewChecker(opts Options) *Checker {
	cfg := opts.Config
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 3
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.HostileRetryAttempts <= 0 {
		cfg.HostileRetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 3 * time.Second
	}
	return &Checker{
		items:        opts.Items,
		observations: opts.Observations,
		fetcher:      opts.Fetcher,
		extractor:    opts.Extractor,
		classifier:   opts.Classifier,
		notifiers:    opts.Notifiers,
		cfg:          cfg,
		logger:       logging.Component(opts.Logger, "monitor"),
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckItem runs one full check. The refresh guard is set before any work
// and always cleared together with last_checked and last_error, whatever
// happens in between.
func (c *Checker) CheckItem(ctx context.Context, id int64) error {
	item, err := c.items.GetItem(ctx, id)
	if err != nil {
		return fmt.Errorf("load item %d: %w", id, err)
	}

	acquired, err := c.items.TryBeginRefresh(ctx, id)
	if err != nil {
		return fmt.Errorf("begin refresh for item %d: %w", id, err)
	}
	if !acquired {
		c.logger.Debug().Int64("item_id", id).Msg("item already refreshing, skipped")
		return nil
	}

	checkErr := c.runCheck(ctx, item)

	// The guard must clear even when ctx is already cancelled.
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lastError *string
	if checkErr != nil {
		msg := checkErr.Error()
		lastError = &msg
	}
	if err := c.items.FinishRefresh(finishCtx, id, c.now(), lastError); err != nil {
		c.logger.Error().Err(err).Int64("item_id", id).Msg("failed to clear refresh guard")
	}

	return checkErr
}

func (c *Checker) runCheck(ctx context.Context, item storage.MonitoredItem) error {
	hostile := isHostileDomain(item.URL)
	slug := fmt.Sprintf("item-%d", item.ID)

	capture, err := c.fetchWithRetry(ctx, item.URL, slug, hostile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	result, err := c.extractor.Extract(ctx, item, capture)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	verdict := c.classifier.Classify(item, capture, result)
	c.logger.Info().
		Int64("item_id", item.ID).
		Str("outcome", string(verdict.Outcome)).
		Str("reason", verdict.Reason).
		Msg("check classified")

	switch verdict.Outcome {
	case detect.OutcomeBlocked:
		return fmt.Errorf("%w: %s", ErrBotBlocked, verdict.Reason)

	case detect.OutcomeUnavailable:
		return c.commitUnavailable(ctx, item, capture)

	case detect.OutcomeUpdated, detect.OutcomeUncertain:
		return c.commitVerdict(ctx, item, capture, result, verdict)

	default:
		if result == nil {
			return fmt.Errorf("%w: no strategy produced a result", ErrExtractionFailed)
		}
		return fmt.Errorf("%w: %s", ErrExtractionFailed, verdict.Reason)
	}
}

// commitUnavailable flips availability off, forces stock out, and appends a
// zero-confidence audit row so the gap is visible in history.
func (c *Checker) commitUnavailable(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) error {
	if err := c.items.SetAvailability(ctx, item.ID, false); err != nil {
		return fmt.Errorf("mark unavailable: %w", err)
	}
	if err := c.items.UpdateStock(ctx, item.ID, false, 1.0); err != nil {
		return fmt.Errorf("force stock off: %w", err)
	}

	zero := 0.0
	obs := storage.PriceObservation{
		ItemID:            item.ID,
		Timestamp:         c.now(),
		PriceConfidence:   &zero,
		InStockConfidence: &zero,
	}
	if capture.ScreenshotPath != "" {
		obs.ScreenshotPath = &capture.ScreenshotPath
	}
	if err := c.observations.AppendObservation(ctx, obs); err != nil {
		return fmt.Errorf("append unavailable observation: %w", err)
	}
	return ErrProductUnavailable
}

func (c *Checker) commitVerdict(ctx context.Context, item storage.MonitoredItem, capture *page.Capture, result *extract.Result, verdict detect.Classification) error {
	if verdict.RestoreAvailability {
		if err := c.items.SetAvailability(ctx, item.ID, true); err != nil {
			return fmt.Errorf("restore availability: %w", err)
		}
		c.logger.Info().Int64("item_id", item.ID).Msg("item available again")
	}

	if verdict.CommitPrice {
		if err := c.items.UpdatePrice(ctx, item.ID, *verdict.NewPrice, result.PriceConfidence); err != nil {
			return fmt.Errorf("commit price: %w", err)
		}
	}
	if verdict.CommitStock {
		if err := c.items.UpdateStock(ctx, item.ID, *verdict.NewStock, result.InStockConfidence); err != nil {
			return fmt.Errorf("commit stock: %w", err)
		}
	}

	if result != nil {
		if err := c.observations.AppendObservation(ctx, c.buildObservation(item, capture, result)); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
	}

	if verdict.CommitPrice {
		c.maybeNotify(ctx, item, verdict)
	}

	if verdict.Outcome == detect.OutcomeUncertain {
		return fmt.Errorf("%w: %s", ErrLowConfidence, verdict.Reason)
	}
	return nil
}

func (c *Checker) buildObservation(item storage.MonitoredItem, capture *page.Capture, result *extract.Result) storage.PriceObservation {
	obs := storage.PriceObservation{
		ItemID:            item.ID,
		Price:             result.Price,
		Timestamp:         c.now(),
		PriceConfidence:   &result.PriceConfidence,
		InStockConfidence: &result.InStockConfidence,
		RepairUsed:        result.Metadata.RepairUsed,
		MultiSample:       result.Metadata.MultiSample,
	}
	if result.Metadata.Model != "" {
		obs.Model = &result.Metadata.Model
		obs.Provider = &result.Metadata.Provider
		obs.PromptVersion = &result.Metadata.PromptVersion
	}
	if capture.ScreenshotPath != "" {
		obs.ScreenshotPath = &capture.ScreenshotPath
	}
	return obs
}

// maybeNotify sends at most one notification for a committed price change.
// Delivery failures are logged and never roll the commit back.
func (c *Checker) maybeNotify(ctx context.Context, item storage.MonitoredItem, verdict detect.Classification) {
	if c.notifiers == nil || item.ChannelID == nil {
		return
	}

	decision := DecideNotification(item, verdict.OldPrice, verdict.NewPrice, c.cfg.RiseNotifyPct)
	if decision == nil {
		return
	}

	notifier, err := c.notifiers.Resolve(ctx, *item.ChannelID)
	if err != nil {
		c.logger.Error().Err(err).Int64("item_id", item.ID).Msg("notifier resolution failed")
		return
	}
	if notifier == nil {
		return
	}

	msg := notifyMessage(decision, item.URL)
	if err := notifier.Send(ctx, msg); err != nil {
		c.logger.Error().Err(err).
			Int64("item_id", item.ID).
			Str("kind", decision.Kind).
			Msg("notification delivery failed")
		return
	}
	c.logger.Info().Int64("item_id", item.ID).Str("kind", decision.Kind).Msg("notification sent")
}

func (c *Checker) fetchWithRetry(ctx context.Context, url, slug string, hostile bool) (*page.Capture, error) {
	attempts := c.cfg.RetryAttempts
	if hostile {
		attempts = c.cfg.HostileRetryAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(c.cfg.RetryBaseDelay, attempt)); err != nil {
				return nil, err
			}
		}

		capture, err := c.fetcher.Fetch(ctx, url, slug, hostile)
		if err == nil {
			return capture, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).
			Str("url", url).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Msg("page fetch failed")
	}
	return nil, lastErr
}

// backoffDelay doubles per attempt with up to 50% jitter on top.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// ProcessTick checks every due item sequentially. Per-item failures are
// logged and recorded on the item; the sweep always finishes.
func (c *Checker) ProcessTick(ctx context.Context, tickAt time.Time) error {
	items, err := c.items.ListActiveItems(ctx)
	if err != nil {
		return fmt.Errorf("list active items: %w", err)
	}

	due := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if item.IsRefreshing || !c.isDue(item, tickAt) {
			continue
		}
		due++
		if err := c.CheckItem(ctx, item.ID); err != nil {
			c.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("scheduled check failed")
		}
	}

	c.logger.Info().Int("active", len(items)).Int("due", due).Msg("tick processed")
	return nil
}

// isDue applies the item's own interval when set, the global default
// otherwise. Items never checked are always due.
func (c *Checker) isDue(item storage.MonitoredItem, now time.Time) bool {
	if item.LastChecked == nil {
		return true
	}
	minutes := item.CheckIntervalMinutes
	if minutes <= 0 {
		minutes = c.cfg.DefaultIntervalMinutes
	}
	return now.Sub(*item.LastChecked) >= time.Duration(minutes)*time.Minute
}

// CheckMany runs on-demand checks for a set of items with bounded
// concurrency. Individual failures do not cancel the batch.
func (c *Checker) CheckMany(ctx context.Context, ids []int64) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrentChecks)

	for _, id := range ids {
		id := id
		group.Go(func() error {
			if err := c.CheckItem(groupCtx, id); err != nil {
				c.logger.Warn().Err(err).Int64("item_id", id).Msg("on-demand check failed")
			}
			return nil
		})
	}
	return group.Wait()
}
