package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cipherbet/oracled/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// These follow the Interface Segregation Principle: the archiver only
// requires the query methods it actually calls, not the full domain store
// interfaces. The Postgres and in-memory stores satisfy them implicitly.
// ---------------------------------------------------------------------------

// PriceArchiveStore provides read access to posted prices for archival
// purposes.
type PriceArchiveStore interface {
	// ListByDay returns every price posted for the given day, one entry per
	// asset at most.
	ListByDay(ctx context.Context, day domain.DayIndex) ([]domain.PriceRecord, error)
}

// BetArchiveStore provides read access to settled bets for archival purposes.
type BetArchiveStore interface {
	// ListClaimedByDay returns every bet targeting the given day that has
	// already been claimed.
	ListClaimedByDay(ctx context.Context, day domain.DayIndex) ([]domain.Bet, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the ledger stores for a
// closed day, serializing the records to JSONL, and uploading the result to
// S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- the ledger keeps its full history, and the archive is
// a cold copy for audit and recovery.
type ArchiveImpl struct {
	writer domain.BlobWriter
	prices PriceArchiveStore
	bets   BetArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	prices PriceArchiveStore,
	bets BetArchiveStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		prices: prices,
		bets:   bets,
		logger: logger.With("component", "archiver"),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// priceArchiveRecord is the JSONL row written for a posted price.
type priceArchiveRecord struct {
	Asset    string    `json:"asset"`
	Day      uint32    `json:"day"`
	Price    uint64    `json:"price"`
	PostedAt time.Time `json:"posted_at"`
}

// betArchiveRecord is the JSONL row written for a settled bet. The encrypted
// prediction handles are recorded in hex form; the underlying values never
// leave the coprocessor.
type betArchiveRecord struct {
	User            string    `json:"user"`
	Asset           string    `json:"asset"`
	Day             uint32    `json:"day"`
	Stake           uint64    `json:"stake"`
	PredictedHandle string    `json:"predicted_handle"`
	DirectionHandle string    `json:"direction_handle"`
	PlacedAt        time.Time `json:"placed_at"`
}

// ArchiveDay uploads the posted prices and settled bets for the given day
// and returns the total number of records written. Files land at
// archive/prices/day-N.jsonl and archive/bets/day-N.jsonl; a day with no
// records produces no objects.
func (a *ArchiveImpl) ArchiveDay(ctx context.Context, day domain.DayIndex) (int64, error) {
	var total int64

	prices, err := a.prices.ListByDay(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive day %d prices query: %w", day, err)
	}
	if len(prices) > 0 {
		rows := make([]priceArchiveRecord, 0, len(prices))
		for _, p := range prices {
			rows = append(rows, priceArchiveRecord{
				Asset:    p.Asset.String(),
				Day:      uint32(p.Day),
				Price:    p.Price,
				PostedAt: p.PostedAt,
			})
		}
		buf, err := marshalJSONL(rows)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive day %d prices marshal: %w", day, err)
		}
		path := archivePath("prices", day)
		if err := a.upload(ctx, path, buf); err != nil {
			return 0, fmt.Errorf("s3blob: archive day %d prices upload: %w", day, err)
		}
		total += int64(len(rows))
		a.logger.Info("archived prices", "day", uint32(day), "path", path, "count", len(rows))
	}

	bets, err := a.bets.ListClaimedByDay(ctx, day)
	if err != nil {
		return total, fmt.Errorf("s3blob: archive day %d bets query: %w", day, err)
	}
	if len(bets) > 0 {
		rows := make([]betArchiveRecord, 0, len(bets))
		for _, b := range bets {
			rows = append(rows, betArchiveRecord{
				User:            b.User.Hex(),
				Asset:           b.Asset.String(),
				Day:             uint32(b.Day),
				Stake:           b.Stake,
				PredictedHandle: b.PredictedPrice.Handle.Hex(),
				DirectionHandle: b.DirectionUp.Handle.Hex(),
				PlacedAt:        b.PlacedAt,
			})
		}
		buf, err := marshalJSONL(rows)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive day %d bets marshal: %w", day, err)
		}
		path := archivePath("bets", day)
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive day %d bets upload: %w", day, err)
		}
		total += int64(len(rows))
		a.logger.Info("archived settled bets", "day", uint32(day), "path", path, "count", len(rows))
	}

	return total, nil
}

// multipartThreshold is the payload size above which uploads switch to the
// multipart path.
const multipartThreshold = 8 * 1024 * 1024

// upload writes one archive object, using a multipart upload for payloads
// large enough to benefit from it.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// day index.
//
//	archive/prices/day-20123.jsonl
//	archive/bets/day-20123.jsonl
func archivePath(kind string, day domain.DayIndex) string {
	return fmt.Sprintf("archive/%s/day-%d.jsonl", kind, day)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
