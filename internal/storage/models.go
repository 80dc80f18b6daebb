package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MonitoredItem is a tracked product page. Item creation and deletion are
// owned by the collaborating frontend; the pipeline only reads and mutates
// monitoring state.
type MonitoredItem struct {
	ID                     int64
	Name                   string
	URL                    string
	Selector               *string
	TargetPrice            *decimal.Decimal
	CheckIntervalMinutes   int
	CurrentPrice           *decimal.Decimal
	CurrentPriceConfidence *float64
	InStock                *bool
	InStockConfidence      *float64
	IsAvailable            bool
	IsActive               bool
	IsRefreshing           bool
	LastChecked            *time.Time
	LastError              *string
	ChannelID              *int64
}

// PriceObservation is one append-only row of extraction history.
type PriceObservation struct {
	ID                int64
	ItemID            int64
	Price             *decimal.Decimal
	Timestamp         time.Time
	PriceConfidence   *float64
	InStockConfidence *float64
	Model             *string
	Provider          *string
	PromptVersion     *string
	RepairUsed        bool
	MultiSample       bool
	ScreenshotPath    *string
}

// NotificationChannel holds delivery configuration for one destination.
type NotificationChannel struct {
	ID       int64
	Name     string
	Kind     string
	Config   json.RawMessage
	IsActive bool
}
