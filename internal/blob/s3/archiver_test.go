package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

type fakeBlobWriter struct {
	objects map[string][]byte
	err     error
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objects: make(map[string][]byte)}
}

func (w *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *fakeBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakePriceStore struct {
	records []domain.PriceRecord
	err     error
}

func (s *fakePriceStore) ListByDay(context.Context, domain.DayIndex) ([]domain.PriceRecord, error) {
	return s.records, s.err
}

type fakeBetStore struct {
	bets []domain.Bet
	err  error
}

func (s *fakeBetStore) ListClaimedByDay(context.Context, domain.DayIndex) ([]domain.Bet, error) {
	return s.bets, s.err
}

func TestArchiveDayWritesJSONL(t *testing.T) {
	day := domain.DayIndex(20_123)
	postedAt := time.Date(2025, 1, 30, 0, 5, 0, 0, time.UTC)

	writer := newFakeBlobWriter()
	prices := &fakePriceStore{records: []domain.PriceRecord{
		{Asset: domain.AssetETH, Day: day, Price: 4000_00000000, PostedAt: postedAt},
		{Asset: domain.AssetBTC, Day: day, Price: 95000_00000000, PostedAt: postedAt},
	}}
	bets := &fakeBetStore{bets: []domain.Bet{
		{
			User:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Asset:   domain.AssetETH,
			Day:     day,
			Stake:   50,
			Claimed: true,
		},
	}}

	arch := NewArchiver(writer, prices, bets, slog.New(slog.DiscardHandler))
	n, err := arch.ArchiveDay(context.Background(), day)
	if err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}
	if n != 3 {
		t.Errorf("records = %d, want 3", n)
	}

	priceObj, ok := writer.objects["archive/prices/day-20123.jsonl"]
	if !ok {
		t.Fatal("price archive object missing")
	}
	if lines := bytes.Count(bytes.TrimRight(priceObj, "\n"), []byte("\n")) + 1; lines != 2 {
		t.Errorf("price archive has %d lines, want 2", lines)
	}
	if !strings.Contains(string(priceObj), `"asset":"ETH"`) {
		t.Errorf("price archive missing ETH row: %s", priceObj)
	}

	betObj, ok := writer.objects["archive/bets/day-20123.jsonl"]
	if !ok {
		t.Fatal("bet archive object missing")
	}
	if !strings.Contains(string(betObj), `"stake":50`) {
		t.Errorf("bet archive missing stake: %s", betObj)
	}
}

func TestArchiveDaySkipsEmptyDay(t *testing.T) {
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, &fakePriceStore{}, &fakeBetStore{}, slog.New(slog.DiscardHandler))

	n, err := arch.ArchiveDay(context.Background(), domain.DayIndex(1))
	if err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}
	if n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
	if len(writer.objects) != 0 {
		t.Errorf("empty day produced %d objects", len(writer.objects))
	}
}

func TestArchiveDayPropagatesErrors(t *testing.T) {
	storeErr := errors.New("connection reset")

	arch := NewArchiver(newFakeBlobWriter(), &fakePriceStore{err: storeErr}, &fakeBetStore{}, slog.New(slog.DiscardHandler))
	if _, err := arch.ArchiveDay(context.Background(), domain.DayIndex(1)); !errors.Is(err, storeErr) {
		t.Errorf("price store error not propagated: %v", err)
	}

	writer := newFakeBlobWriter()
	writer.err = storeErr
	arch = NewArchiver(writer, &fakePriceStore{records: []domain.PriceRecord{{Asset: domain.AssetETH}}}, &fakeBetStore{}, slog.New(slog.DiscardHandler))
	if _, err := arch.ArchiveDay(context.Background(), domain.DayIndex(1)); !errors.Is(err, storeErr) {
		t.Errorf("upload error not propagated: %v", err)
	}
}
