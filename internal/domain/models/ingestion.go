package models

import (
	"github.com/shopspring/decimal"
)

// Platform is the closed set of ingestion row kinds. Unrecognised tags are
// kept as PlatformUnmapped with the raw tag preserved on the entry.
type Platform string

const (
	PlatformEarningsA Platform = "earnings_a"
	PlatformEarningsB Platform = "earnings_b"
	PlatformFuel      Platform = "fuel"
	PlatformTolls     Platform = "tolls"
	PlatformUnmapped  Platform = "unmapped"
)

// KnownPlatforms lists every mapped platform in aggregation order.
var KnownPlatforms = []Platform{PlatformEarningsA, PlatformEarningsB, PlatformFuel, PlatformTolls}

// ParsePlatform maps a raw ingestion tag onto the closed platform set.
func ParsePlatform(tag string) (Platform, bool) {
	switch Platform(tag) {
	case PlatformEarningsA, PlatformEarningsB, PlatformFuel, PlatformTolls:
		return Platform(tag), true
	default:
		return PlatformUnmapped, false
	}
}

// IsEarnings reports whether rows of this platform count towards gross earnings.
func (p Platform) IsEarnings() bool {
	return p == PlatformEarningsA || p == PlatformEarningsB
}

// IsExpense reports whether rows of this platform are operating expenses.
func (p Platform) IsExpense() bool {
	return p == PlatformFuel || p == PlatformTolls
}

// IngestionEntry is one raw income/expense row produced by an external source.
type IngestionEntry struct {
	ID          string
	DriverID    string
	WeekID      string
	Platform    Platform
	RawPlatform string // original tag, always set; differs from Platform only when unmapped
	Amount      decimal.Decimal
	Trips       int // ride count reported by earnings platforms, zero for expenses
}

// IngestionTotals is the aggregated view of a driver's week.
type IngestionTotals struct {
	EarningsByPlatform map[Platform]decimal.Decimal
	GrossEarnings      decimal.Decimal
	FuelCost           decimal.Decimal
	TollCost           decimal.Decimal
	Trips              int
	RowCount           int
	UnmappedTags       []string
	FailedSources      []SourceFailure
}

// SourceFailure tags one ingestion source that could not be read.
type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}
