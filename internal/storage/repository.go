package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	itemColumns = `id,
        name,
        url,
        selector,
        target_price,
        check_interval_minutes,
        current_price,
        current_price_confidence,
        in_stock,
        in_stock_confidence,
        is_available,
        is_active,
        is_refreshing,
        last_checked,
        last_error,
        notification_channel_id`

	getItemSQL = `SELECT ` + itemColumns + `
    FROM monitored_items
    WHERE id = $1;`

	listActiveItemsSQL = `SELECT ` + itemColumns + `
    FROM monitored_items
    WHERE is_active = TRUE
    ORDER BY id;`

	tryBeginRefreshSQL = `UPDATE monitored_items
    SET is_refreshing = TRUE
    WHERE id = $1
      AND is_refreshing = FALSE;`

	finishRefreshSQL = `UPDATE monitored_items
    SET is_refreshing = FALSE,
        last_checked  = $2,
        last_error    = $3
    WHERE id = $1;`

	updatePriceSQL = `UPDATE monitored_items
    SET current_price            = $2,
        current_price_confidence = $3
    WHERE id = $1;`

	updateStockSQL = `UPDATE monitored_items
    SET in_stock            = $2,
        in_stock_confidence = $3
    WHERE id = $1;`

	setAvailabilitySQL = `UPDATE monitored_items
    SET is_available = $2
    WHERE id = $1;`

	appendObservationSQL = `INSERT INTO price_observations (
        item_id,
        price,
        observed_at,
        price_confidence,
        in_stock_confidence,
        model,
        provider,
        prompt_version,
        repair_used,
        multi_sample,
        screenshot_path
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listObservationsSQL = `SELECT
        id,
        item_id,
        price,
        observed_at,
        price_confidence,
        in_stock_confidence,
        model,
        provider,
        prompt_version,
        repair_used,
        multi_sample,
        screenshot_path
    FROM price_observations
    WHERE item_id = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	listObservationsBetweenSQL = `SELECT
        id,
        item_id,
        price,
        observed_at,
        price_confidence,
        in_stock_confidence,
        model,
        provider,
        prompt_version,
        repair_used,
        multi_sample,
        screenshot_path
    FROM price_observations
    WHERE item_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	getChannelSQL = `SELECT
        id,
        name,
        kind,
        config,
        is_active
    FROM notification_channels
    WHERE id = $1;`
)

// ItemStore defines read and mutation operations on monitored items.
type ItemStore interface {
	GetItem(ctx context.Context, id int64) (MonitoredItem, error)
	ListActiveItems(ctx context.Context) ([]MonitoredItem, error)
	TryBeginRefresh(ctx context.Context, id int64) (bool, error)
	FinishRefresh(ctx context.Context, id int64, checkedAt time.Time, lastError *string) error
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, confidence float64) error
	UpdateStock(ctx context.Context, id int64, inStock bool, confidence float64) error
	SetAvailability(ctx context.Context, id int64, available bool) error
}

// ObservationStore defines the append-only history operations.
type ObservationStore interface {
	AppendObservation(ctx context.Context, obs PriceObservation) error
	ListObservations(ctx context.Context, itemID int64, limit int) ([]PriceObservation, error)
	ListObservationsBetween(ctx context.Context, itemID int64, from, to time.Time) ([]PriceObservation, error)
}

// ChannelStore resolves notification channel rows.
type ChannelStore interface {
	GetChannel(ctx context.Context, id int64) (NotificationChannel, error)
}

// Store aggregates access to items, observations, and channels.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ ItemStore        = (*Store)(nil)
	_ ObservationStore = (*Store)(nil)
	_ ChannelStore     = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetItem fetches a single monitored item by id.
func (s *Store) GetItem(ctx context.Context, id int64) (MonitoredItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return MonitoredItem{}, err
	}
	row := pool.QueryRow(ctx, getItemSQL, id)
	return scanItem(row)
}

// ListActiveItems lists every active monitored item.
func (s *Store) ListActiveItems(ctx context.Context) ([]MonitoredItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveItemsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active items: %w", queryErr)
	}
	defer rows.Close()

	items := make([]MonitoredItem, 0)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// TryBeginRefresh flips is_refreshing only when the item is not already being
// checked. Single pipeline process assumed; the conditional update keeps a
// second in-process caller out, not a second deployment.
func (s *Store) TryBeginRefresh(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, tryBeginRefreshSQL, id)
	if execErr != nil {
		return false, fmt.Errorf("begin refresh: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// FinishRefresh clears the refresh guard and records the check outcome.
func (s *Store) FinishRefresh(ctx context.Context, id int64, checkedAt time.Time, lastError *string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if lastError != nil {
		errMsg = *lastError
	}

	if _, execErr := pool.Exec(ctx, finishRefreshSQL, id, checkedAt, errMsg); execErr != nil {
		return fmt.Errorf("finish refresh: %w", execErr)
	}
	return nil
}

// UpdatePrice commits a new current price and its confidence.
func (s *Store) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, confidence float64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, updatePriceSQL, id, price.String(), confidence); execErr != nil {
		return fmt.Errorf("update price: %w", execErr)
	}
	return nil
}

// UpdateStock commits a new stock status and its confidence.
func (s *Store) UpdateStock(ctx context.Context, id int64, inStock bool, confidence float64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, updateStockSQL, id, inStock, confidence); execErr != nil {
		return fmt.Errorf("update stock: %w", execErr)
	}
	return nil
}

// SetAvailability records whether the product page still exists.
func (s *Store) SetAvailability(ctx context.Context, id int64, available bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, setAvailabilitySQL, id, available)
	if execErr != nil {
		return fmt.Errorf("set availability: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AppendObservation persists one history row. History rows are never
// updated or deleted by the pipeline.
func (s *Store) AppendObservation(ctx context.Context, obs PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var price interface{}
	if obs.Price != nil {
		price = obs.Price.String()
	}

	_, execErr := pool.Exec(ctx, appendObservationSQL,
		obs.ItemID,
		price,
		obs.Timestamp,
		obs.PriceConfidence,
		obs.InStockConfidence,
		obs.Model,
		obs.Provider,
		obs.PromptVersion,
		obs.RepairUsed,
		obs.MultiSample,
		obs.ScreenshotPath,
	)
	if execErr != nil {
		return fmt.Errorf("append observation: %w", execErr)
	}
	return nil
}

// ListObservations lists the most recent history rows for one item.
func (s *Store) ListObservations(ctx context.Context, itemID int64, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, itemID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListObservationsBetween lists history rows within a time window.
func (s *Store) ListObservationsBetween(ctx context.Context, itemID int64, from, to time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, itemID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// GetChannel fetches a notification channel row.
func (s *Store) GetChannel(ctx context.Context, id int64) (NotificationChannel, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationChannel{}, err
	}

	var (
		ch     NotificationChannel
		config json.RawMessage
	)
	if scanErr := pool.QueryRow(ctx, getChannelSQL, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.Kind,
		&config,
		&ch.IsActive,
	); scanErr != nil {
		return NotificationChannel{}, fmt.Errorf("get channel: %w", scanErr)
	}
	ch.Config = config
	return ch, nil
}

func collectObservations(rows pgx.Rows, hint int) ([]PriceObservation, error) {
	observations := make([]PriceObservation, 0, hint)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanItem(row pgx.Row) (MonitoredItem, error) {
	var (
		item       MonitoredItem
		selector   sql.NullString
		target     sql.NullString
		current    sql.NullString
		priceConf  sql.NullFloat64
		inStock    sql.NullBool
		stockConf  sql.NullFloat64
		lastCheck  sql.NullTime
		lastError  sql.NullString
		channelID  sql.NullInt64
	)

	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.URL,
		&selector,
		&target,
		&item.CheckIntervalMinutes,
		&current,
		&priceConf,
		&inStock,
		&stockConf,
		&item.IsAvailable,
		&item.IsActive,
		&item.IsRefreshing,
		&lastCheck,
		&lastError,
		&channelID,
	); err != nil {
		return MonitoredItem{}, err
	}

	if selector.Valid {
		value := selector.String
		item.Selector = &value
	}
	if target.Valid {
		price, err := decimal.NewFromString(target.String)
		if err != nil {
			return MonitoredItem{}, fmt.Errorf("parse target price: %w", err)
		}
		item.TargetPrice = &price
	}
	if current.Valid {
		price, err := decimal.NewFromString(current.String)
		if err != nil {
			return MonitoredItem{}, fmt.Errorf("parse current price: %w", err)
		}
		item.CurrentPrice = &price
	}
	if priceConf.Valid {
		value := priceConf.Float64
		item.CurrentPriceConfidence = &value
	}
	if inStock.Valid {
		value := inStock.Bool
		item.InStock = &value
	}
	if stockConf.Valid {
		value := stockConf.Float64
		item.InStockConfidence = &value
	}
	if lastCheck.Valid {
		value := lastCheck.Time
		item.LastChecked = &value
	}
	if lastError.Valid {
		value := lastError.String
		item.LastError = &value
	}
	if channelID.Valid {
		value := channelID.Int64
		item.ChannelID = &value
	}

	return item, nil
}

func scanObservation(rows pgx.Rows) (PriceObservation, error) {
	var (
		obs        PriceObservation
		price      sql.NullString
		priceConf  sql.NullFloat64
		stockConf  sql.NullFloat64
		model      sql.NullString
		provider   sql.NullString
		promptVer  sql.NullString
		repair     sql.NullBool
		multi      sql.NullBool
		screenshot sql.NullString
	)

	if err := rows.Scan(
		&obs.ID,
		&obs.ItemID,
		&price,
		&obs.Timestamp,
		&priceConf,
		&stockConf,
		&model,
		&provider,
		&promptVer,
		&repair,
		&multi,
		&screenshot,
	); err != nil {
		return PriceObservation{}, err
	}

	if price.Valid {
		value, err := decimal.NewFromString(price.String)
		if err != nil {
			return PriceObservation{}, fmt.Errorf("parse observation price: %w", err)
		}
		obs.Price = &value
	}
	if priceConf.Valid {
		value := priceConf.Float64
		obs.PriceConfidence = &value
	}
	if stockConf.Valid {
		value := stockConf.Float64
		obs.InStockConfidence = &value
	}
	if model.Valid {
		value := model.String
		obs.Model = &value
	}
	if provider.Valid {
		value := provider.String
		obs.Provider = &value
	}
	if promptVer.Valid {
		value := promptVer.String
		obs.PromptVersion = &value
	}
	obs.RepairUsed = repair.Valid && repair.Bool
	obs.MultiSample = multi.Valid && multi.Bool
	if screenshot.Valid {
		value := screenshot.String
		obs.ScreenshotPath = &value
	}

	return obs, nil
}
