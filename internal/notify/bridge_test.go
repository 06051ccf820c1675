package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

type recordingSender struct {
	titles   []string
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func addrPtr(hex string) *common.Address {
	a := common.HexToAddress(hex)
	return &a
}

func dayPtr(d domain.DayIndex) *domain.DayIndex { return &d }

func TestBridgeFormatsLedgerEvents(t *testing.T) {
	alice := addrPtr("0x1111111111111111111111111111111111111111")
	bob := addrPtr("0x2222222222222222222222222222222222222222")
	at := time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		evt       domain.Event
		wantTitle string
		wantIn    string
	}{
		{
			name: "price updated",
			evt: func() domain.Event {
				e := domain.NewEvent(domain.EventPriceUpdated, at)
				asset := domain.AssetETH
				e.Asset = &asset
				e.Day = dayPtr(20_123)
				e.Price = 4000_00000000
				return e
			}(),
			wantTitle: "Price posted",
			wantIn:    "ETH day 20123",
		},
		{
			name: "bet placed",
			evt: func() domain.Event {
				e := domain.NewEvent(domain.EventBetPlaced, at)
				asset := domain.AssetBTC
				e.User = alice
				e.Asset = &asset
				e.Day = dayPtr(20_124)
				e.Stake = 50
				return e
			}(),
			wantTitle: "Bet placed",
			wantIn:    "stake 50",
		},
		{
			name: "oracle rotated",
			evt: func() domain.Event {
				e := domain.NewEvent(domain.EventOracleRotated, at)
				e.From = alice
				e.To = bob
				return e
			}(),
			wantTitle: "Oracle rotated",
			wantIn:    bob.Hex(),
		},
		{
			name: "funds withdrawn",
			evt: func() domain.Event {
				e := domain.NewEvent(domain.EventFundsWithdrawn, at)
				e.To = bob
				e.Amount = 900
				return e
			}(),
			wantTitle: "Funds withdrawn",
			wantIn:    "900",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			bridge := NewEventBridge(NewNotifier([]Sender{sender}, nil, slog.New(slog.DiscardHandler)))

			bridge.PublishEvent(context.Background(), tt.evt)

			if len(sender.titles) != 1 {
				t.Fatalf("got %d notifications, want 1", len(sender.titles))
			}
			if sender.titles[0] != tt.wantTitle {
				t.Errorf("title = %q, want %q", sender.titles[0], tt.wantTitle)
			}
			if !strings.Contains(sender.messages[0], tt.wantIn) {
				t.Errorf("message %q does not contain %q", sender.messages[0], tt.wantIn)
			}
		})
	}
}

func TestBridgeHonorsEventFilter(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{string(domain.EventOracleRotated)}, slog.New(slog.DiscardHandler))
	bridge := NewEventBridge(notifier)

	at := time.Now()
	bridge.PublishEvent(context.Background(), domain.NewEvent(domain.EventBetPlaced, at))
	if len(sender.titles) != 0 {
		t.Fatalf("filtered event was delivered: %v", sender.titles)
	}

	evt := domain.NewEvent(domain.EventOracleRotated, at)
	evt.From = addrPtr("0x1111111111111111111111111111111111111111")
	evt.To = addrPtr("0x2222222222222222222222222222222222222222")
	bridge.PublishEvent(context.Background(), evt)
	if len(sender.titles) != 1 {
		t.Fatalf("allowed event was not delivered")
	}
}
