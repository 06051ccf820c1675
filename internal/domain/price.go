package domain

import "time"

// PriceRecord is the oracle's posted price for one asset on one day. Records
// are append-only per (Asset, Day) key: once posted a price is never
// corrected or overwritten.
type PriceRecord struct {
	Asset    Asset
	Day      DayIndex
	Price    uint64 // fixed-point, PriceScale decimals
	PostedAt time.Time
}
