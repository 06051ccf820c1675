package domain

import (
	"fmt"
	"strings"
)

// Asset identifies a tracked token. The set is closed; assets are lookup keys
// only and never participate in arithmetic.
type Asset uint8

const (
	AssetETH Asset = 0
	AssetBTC Asset = 1

	// assetCount is the number of known assets; used for validation.
	assetCount = 2
)

// PriceScale is the fixed-point scale for daily prices: a stored price of
// 4000_00000000 means 4000.00000000.
const PriceScale uint64 = 100_000_000

// Valid reports whether a is a member of the closed asset set.
func (a Asset) Valid() bool {
	return uint8(a) < assetCount
}

// String returns the ticker symbol for the asset.
func (a Asset) String() string {
	switch a {
	case AssetETH:
		return "ETH"
	case AssetBTC:
		return "BTC"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// ParseAsset accepts a ticker symbol or numeric identifier ("ETH", "BTC",
// "0", "1") and returns the corresponding Asset.
func ParseAsset(s string) (Asset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ETH", "0":
		return AssetETH, nil
	case "BTC", "1":
		return AssetBTC, nil
	default:
		return 0, fmt.Errorf("parse asset %q: %w", s, ErrUnknownAsset)
	}
}
