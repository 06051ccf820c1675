package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
	"github.com/cipherbet/oracled/internal/fhe"
	"github.com/cipherbet/oracled/internal/store/memory"
)

var (
	ledgerAddr = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	deployer   = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b01")
)

// fakeClock is a settable Clock for driving the day gate in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) byType(typ domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	eng   *Engine
	cop   *fhe.Coprocessor
	clock *fakeClock
	pub   *recordingPublisher
	state *memory.StateStore
	day0  domain.DayIndex
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStores(t, nil)
}

// newFixtureWithStores lets a test swap in failure-injecting store wrappers.
func newFixtureWithStores(t *testing.T, wrap func(*Stores)) *fixture {
	t.Helper()

	day0 := domain.DayIndex(20_000)
	clock := &fakeClock{now: day0.Start().Add(123 * time.Second)}
	cop := fhe.New(ledgerAddr, fhe.OverflowWrap)
	pub := &recordingPublisher{}
	state := memory.NewStateStore(deployer)

	stores := Stores{
		Prices: memory.NewPriceStore(),
		Bets:   memory.NewBetStore(),
		Points: memory.NewPointsStore(),
		State:  state,
	}
	if wrap != nil {
		wrap(&stores)
	}

	eng := New(cop, stores, Options{
		Publisher: pub,
		Clock:     clock,
	}, slog.New(slog.DiscardHandler))

	return &fixture{eng: eng, cop: cop, clock: clock, pub: pub, state: state, day0: day0}
}

// placeBet encrypts a prediction for user and places the bet, returning the
// target day.
func (f *fixture) placeBet(t *testing.T, user common.Address, asset domain.Asset, predicted uint64, directionUp bool, stake uint64) domain.DayIndex {
	t.Helper()

	handles, proof, err := f.cop.EncryptInput(user).AddUint64(predicted).AddBool(directionUp).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	day, err := f.eng.PlaceBet(context.Background(), user, asset, handles[0], handles[1], proof, stake)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	return day
}

// decryptPoints reads user's balance through the coprocessor grant.
func (f *fixture) decryptPoints(t *testing.T, user common.Address) uint64 {
	t.Helper()

	enc, err := f.eng.GetEncryptedPoints(context.Background(), user)
	if err != nil {
		t.Fatalf("GetEncryptedPoints: %v", err)
	}
	if enc.IsZero() {
		return 0
	}
	v, err := f.cop.UserDecryptUint64(context.Background(), enc.Handle, user)
	if err != nil {
		t.Fatalf("decrypt points: %v", err)
	}
	return v
}

func TestPlaceBet_TargetsTomorrow(t *testing.T) {
	f := newFixture(t)

	// Just after midnight.
	day := f.placeBet(t, alice, domain.AssetETH, 4000*domain.PriceScale, true, 100)
	if day != f.day0+1 {
		t.Fatalf("target day = %d, want %d", day, f.day0+1)
	}

	// One second before the next midnight: still tomorrow-relative-to-now.
	f.clock.Set((f.day0 + 1).Start().Add(-time.Second))
	day = f.placeBet(t, bob, domain.AssetETH, 4000*domain.PriceScale, true, 100)
	if day != f.day0+1 {
		t.Fatalf("target day = %d, want %d", day, f.day0+1)
	}
}

func TestPlaceBet_RejectsZeroStakeAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handles, proof, err := f.cop.EncryptInput(alice).AddUint64(1).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	if _, err := f.eng.PlaceBet(ctx, alice, domain.AssetETH, handles[0], handles[1], proof, 0); !errors.Is(err, domain.ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake, got %v", err)
	}

	f.placeBet(t, alice, domain.AssetETH, 1, true, 5)

	handles, proof, err = f.cop.EncryptInput(alice).AddUint64(2).AddBool(false).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	if _, err := f.eng.PlaceBet(ctx, alice, domain.AssetETH, handles[0], handles[1], proof, 5); !errors.Is(err, domain.ErrBetAlreadyExists) {
		t.Fatalf("expected ErrBetAlreadyExists, got %v", err)
	}
}

func TestPlaceBet_RejectsForeignProof(t *testing.T) {
	f := newFixture(t)

	// Bob tries to replay alice's encrypted input.
	handles, proof, err := f.cop.EncryptInput(alice).AddUint64(1).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	if _, err := f.eng.PlaceBet(context.Background(), bob, domain.AssetETH, handles[0], handles[1], proof, 5); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestPostPrice_RoleAndImmutability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.PostPrice(ctx, alice, domain.AssetETH, 10); !errors.Is(err, domain.ErrNotOracle) {
		t.Fatalf("expected ErrNotOracle, got %v", err)
	}

	rec, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, 10)
	if err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	if rec.Day != f.day0 || rec.Price != 10 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, 99); !errors.Is(err, domain.ErrPriceAlreadyPosted) {
		t.Fatalf("expected ErrPriceAlreadyPosted, got %v", err)
	}

	// The original record must be intact.
	got, ok, err := f.eng.GetDailyPrice(ctx, domain.AssetETH, f.day0)
	if err != nil || !ok {
		t.Fatalf("GetDailyPrice: ok=%v err=%v", ok, err)
	}
	if got.Price != 10 {
		t.Fatalf("price overwritten: %d", got.Price)
	}

	// Distinct asset on the same day is a distinct key.
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetBTC, 20); err != nil {
		t.Fatalf("PostPrice btc: %v", err)
	}
}

func TestGetDailyPrice_AbsentIsNotAnError(t *testing.T) {
	f := newFixture(t)

	_, ok, err := f.eng.GetDailyPrice(context.Background(), domain.AssetBTC, f.day0)
	if err != nil {
		t.Fatalf("GetDailyPrice: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for absent record")
	}
}

func TestClaimLifecycle_Gates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 1)

	// Immediately after placement: not claimable, claim fails on price.
	if ok, _ := f.eng.IsBetClaimable(ctx, alice, domain.AssetETH, target); ok {
		t.Fatalf("claimable immediately after placement")
	}
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, domain.ErrPriceNotAvailable) {
		t.Fatalf("expected ErrPriceNotAvailable, got %v", err)
	}

	// Target day arrives, oracle posts its price. Same-day claim is gated.
	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	if ok, _ := f.eng.IsBetClaimable(ctx, alice, domain.AssetETH, target); ok {
		t.Fatalf("claimable on the target day itself")
	}
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, domain.ErrBetNotClaimable) {
		t.Fatalf("expected ErrBetNotClaimable, got %v", err)
	}

	// The day after, the bet opens up.
	f.clock.Set((target + 1).Start().Add(10 * time.Second))
	if ok, _ := f.eng.IsBetClaimable(ctx, alice, domain.AssetETH, target); !ok {
		t.Fatalf("not claimable after the target day closed")
	}
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// A second claim never re-pays.
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, domain.ErrBetNotClaimable) {
		t.Fatalf("expected ErrBetNotClaimable on re-claim, got %v", err)
	}
	if ok, _ := f.eng.IsBetClaimable(ctx, alice, domain.AssetETH, target); ok {
		t.Fatalf("claimable after settlement")
	}
	if got := f.decryptPoints(t, alice); got != 1 {
		t.Fatalf("points = %d, want 1 after single payout", got)
	}
}

func TestClaim_UnknownBet(t *testing.T) {
	f := newFixture(t)

	err := f.eng.Claim(context.Background(), alice, domain.AssetETH, f.day0+1)
	if !errors.Is(err, domain.ErrBetNotFound) {
		t.Fatalf("expected ErrBetNotFound, got %v", err)
	}
}

func TestClaim_IsKeyedByCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 7)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))

	// Bob cannot claim alice's bet: the lookup is keyed by the caller.
	if err := f.eng.Claim(ctx, bob, domain.AssetETH, target); !errors.Is(err, domain.ErrBetNotFound) {
		t.Fatalf("expected ErrBetNotFound, got %v", err)
	}
}

func TestSettlement_WinCreditsStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 1)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))

	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := f.decryptPoints(t, alice); got != 1 {
		t.Fatalf("points = %d, want 1", got)
	}
}

func TestSettlement_LossSettlesWithoutCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 100_000 * domain.PriceScale
	// Direction says "actual < predicted" but the realized price is higher.
	target := f.placeBet(t, alice, domain.AssetBTC, predicted, false, 500)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetBTC, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))

	if err := f.eng.Claim(ctx, alice, domain.AssetBTC, target); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// The state transition happened but no points accrued.
	bet, ok, err := f.eng.GetBet(ctx, alice, domain.AssetBTC, target)
	if err != nil || !ok {
		t.Fatalf("GetBet: ok=%v err=%v", ok, err)
	}
	if !bet.Claimed {
		t.Fatalf("bet not marked claimed after losing settlement")
	}
	if got := f.decryptPoints(t, alice); got != 0 {
		t.Fatalf("points = %d, want 0", got)
	}
}

func TestSettlement_AccumulatesAcrossWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale

	// Two winning bets on different assets for the same target day.
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 3)
	if got := f.placeBet(t, alice, domain.AssetBTC, predicted, true, 4); got != target {
		t.Fatalf("target days diverged: %d vs %d", got, target)
	}

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice eth: %v", err)
	}
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetBTC, predicted+1); err != nil {
		t.Fatalf("PostPrice btc: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))

	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim eth: %v", err)
	}
	if err := f.eng.Claim(ctx, alice, domain.AssetBTC, target); err != nil {
		t.Fatalf("Claim btc: %v", err)
	}

	if got := f.decryptPoints(t, alice); got != 7 {
		t.Fatalf("points = %d, want 7", got)
	}
}

func TestSettlement_BalanceGrantIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 9)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	enc, err := f.eng.GetEncryptedPoints(ctx, alice)
	if err != nil {
		t.Fatalf("GetEncryptedPoints: %v", err)
	}
	if _, err := f.cop.UserDecryptUint64(ctx, enc.Handle, bob); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner decrypt, got %v", err)
	}
}

func TestGetEncryptedPoints_UntouchedIsZeroHandle(t *testing.T) {
	f := newFixture(t)

	enc, err := f.eng.GetEncryptedPoints(context.Background(), bob)
	if err != nil {
		t.Fatalf("GetEncryptedPoints: %v", err)
	}
	if !enc.IsZero() {
		t.Fatalf("expected zero-handle sentinel for untouched account")
	}
}

func TestWithdraw_GatesAndAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.placeBet(t, alice, domain.AssetETH, 1, true, 100)
	f.placeBet(t, bob, domain.AssetETH, 1, false, 50)

	if err := f.eng.Withdraw(ctx, alice, alice, 10); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.eng.Withdraw(ctx, deployer, common.Address{}, 10); !errors.Is(err, domain.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := f.eng.Withdraw(ctx, deployer, deployer, 151); !errors.Is(err, domain.ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	// The failed withdrawal left the pool untouched.
	state, err := f.eng.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.StakePool != 150 {
		t.Fatalf("stake pool = %d, want 150", state.StakePool)
	}

	if err := f.eng.Withdraw(ctx, deployer, deployer, 150); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	state, _ = f.eng.State(ctx)
	if state.StakePool != 0 {
		t.Fatalf("stake pool = %d after full withdrawal", state.StakePool)
	}

	if err := f.eng.Withdraw(ctx, deployer, deployer, 1); !errors.Is(err, domain.ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw on empty pool, got %v", err)
	}
}

func TestRoleRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.SetOracle(ctx, alice, bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.eng.SetOracle(ctx, deployer, common.Address{}); !errors.Is(err, domain.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}

	if err := f.eng.SetOracle(ctx, deployer, bob); err != nil {
		t.Fatalf("SetOracle: %v", err)
	}
	// The previous oracle loses the posting right.
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, 1); !errors.Is(err, domain.ErrNotOracle) {
		t.Fatalf("expected ErrNotOracle for rotated-out oracle, got %v", err)
	}
	if _, err := f.eng.PostPrice(ctx, bob, domain.AssetETH, 1); err != nil {
		t.Fatalf("PostPrice by new oracle: %v", err)
	}

	if err := f.eng.TransferOwnership(ctx, deployer, common.Address{}); !errors.Is(err, domain.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := f.eng.TransferOwnership(ctx, deployer, alice); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	// Former owner is locked out; new owner can rotate the oracle.
	if err := f.eng.SetOracle(ctx, deployer, alice); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for former owner, got %v", err)
	}
	if err := f.eng.SetOracle(ctx, alice, deployer); err != nil {
		t.Fatalf("SetOracle by new owner: %v", err)
	}
}

func TestEvents_FireOncePerCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 1)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// A failed re-claim must not emit another event.
	_ = f.eng.Claim(ctx, alice, domain.AssetETH, target)

	if got := len(f.pub.byType(domain.EventBetPlaced)); got != 1 {
		t.Fatalf("bet_placed events = %d, want 1", got)
	}
	if got := len(f.pub.byType(domain.EventPriceUpdated)); got != 1 {
		t.Fatalf("price_updated events = %d, want 1", got)
	}
	claimed := f.pub.byType(domain.EventBetClaimed)
	if len(claimed) != 1 {
		t.Fatalf("bet_claimed events = %d, want 1", len(claimed))
	}
	if claimed[0].User == nil || *claimed[0].User != alice {
		t.Fatalf("bet_claimed event missing user")
	}
}

// Store wrappers that fail a call a set number of times before delegating.

var errTransient = errors.New("transient store failure")

type flakyBetStore struct {
	domain.BetStore
	createFails int
	markFails   int
}

func (s *flakyBetStore) Create(ctx context.Context, bet domain.Bet) error {
	if s.createFails > 0 {
		s.createFails--
		return errTransient
	}
	return s.BetStore.Create(ctx, bet)
}

func (s *flakyBetStore) MarkClaimed(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) error {
	if s.markFails > 0 {
		s.markFails--
		return errTransient
	}
	return s.BetStore.MarkClaimed(ctx, user, asset, day)
}

type flakyPointsStore struct {
	domain.PointsStore
	putFails int
}

func (s *flakyPointsStore) Put(ctx context.Context, acct domain.PointsAccount) error {
	if s.putFails > 0 {
		s.putFails--
		return errTransient
	}
	return s.PointsStore.Put(ctx, acct)
}

type flakyStateStore struct {
	domain.StateStore
	addFails int
}

func (s *flakyStateStore) AddStake(ctx context.Context, amount uint64) error {
	if s.addFails > 0 {
		s.addFails--
		return errTransient
	}
	return s.StateStore.AddStake(ctx, amount)
}

// advanceToClaimable places a winning bet for alice, posts the price, and
// moves the clock past the target day.
func advanceToClaimable(t *testing.T, f *fixture) domain.DayIndex {
	t.Helper()
	ctx := context.Background()

	predicted := 4000 * domain.PriceScale
	target := f.placeBet(t, alice, domain.AssetETH, predicted, true, 5)

	f.clock.Set(target.Start().Add(10 * time.Second))
	if _, err := f.eng.PostPrice(ctx, deployer, domain.AssetETH, predicted+1); err != nil {
		t.Fatalf("PostPrice: %v", err)
	}
	f.clock.Set((target + 1).Start().Add(10 * time.Second))
	return target
}

func TestClaim_FailedMarkLeavesBetRetryable(t *testing.T) {
	bets := &flakyBetStore{markFails: 1}
	f := newFixtureWithStores(t, func(s *Stores) {
		bets.BetStore = s.Bets
		s.Bets = bets
	})
	ctx := context.Background()

	target := advanceToClaimable(t, f)

	// The flag write fails before anything is credited.
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := f.decryptPoints(t, alice); got != 0 {
		t.Fatalf("points = %d after failed claim, want 0", got)
	}
	bet, ok, err := f.eng.GetBet(ctx, alice, domain.AssetETH, target)
	if err != nil || !ok {
		t.Fatalf("GetBet: ok=%v err=%v", ok, err)
	}
	if bet.Claimed {
		t.Fatalf("bet marked claimed although the flag write failed")
	}

	// The retry pays exactly once.
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); err != nil {
		t.Fatalf("Claim retry: %v", err)
	}
	if got := f.decryptPoints(t, alice); got != 5 {
		t.Fatalf("points = %d, want 5 after single payout", got)
	}
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, domain.ErrBetNotClaimable) {
		t.Fatalf("expected ErrBetNotClaimable on re-claim, got %v", err)
	}
}

func TestClaim_SpentClaimNeverRepays(t *testing.T) {
	points := &flakyPointsStore{putFails: 1}
	f := newFixtureWithStores(t, func(s *Stores) {
		points.PointsStore = s.Points
		s.Points = points
	})
	ctx := context.Background()

	target := advanceToClaimable(t, f)

	// Settlement fails after the claimed flag was spent.
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	bet, ok, err := f.eng.GetBet(ctx, alice, domain.AssetETH, target)
	if err != nil || !ok {
		t.Fatalf("GetBet: ok=%v err=%v", ok, err)
	}
	if !bet.Claimed {
		t.Fatalf("claim not spent before settlement")
	}

	// Replaying the claim must not pass the gates again.
	if err := f.eng.Claim(ctx, alice, domain.AssetETH, target); !errors.Is(err, domain.ErrBetNotClaimable) {
		t.Fatalf("expected ErrBetNotClaimable on replay, got %v", err)
	}
	if got := f.decryptPoints(t, alice); got != 0 {
		t.Fatalf("points = %d, want 0: a spent claim must never accrue on replay", got)
	}
	if got := len(f.pub.byType(domain.EventBetClaimed)); got != 0 {
		t.Fatalf("bet_claimed events = %d for a failed settlement, want 0", got)
	}
}

func TestPlaceBet_FailedStakeCreditCreatesNoBet(t *testing.T) {
	state := &flakyStateStore{addFails: 1}
	f := newFixtureWithStores(t, func(s *Stores) {
		state.StateStore = s.State
		s.State = state
	})
	ctx := context.Background()

	handles, proof, err := f.cop.EncryptInput(alice).AddUint64(1).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	if _, err := f.eng.PlaceBet(ctx, alice, domain.AssetETH, handles[0], handles[1], proof, 9); !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if _, ok, _ := f.eng.GetBet(ctx, alice, domain.AssetETH, f.day0+1); ok {
		t.Fatalf("bet persisted although its stake never reached the pool")
	}

	// The retry places the bet and funds the pool once.
	target := f.placeBet(t, alice, domain.AssetETH, 1, true, 9)
	st, err := f.eng.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.StakePool != 9 {
		t.Fatalf("stake pool = %d, want 9", st.StakePool)
	}
	if _, ok, _ := f.eng.GetBet(ctx, alice, domain.AssetETH, target); !ok {
		t.Fatalf("bet missing after retry")
	}
}

func TestPlaceBet_FailedInsertRollsBackStake(t *testing.T) {
	bets := &flakyBetStore{createFails: 1}
	f := newFixtureWithStores(t, func(s *Stores) {
		bets.BetStore = s.Bets
		s.Bets = bets
	})
	ctx := context.Background()

	handles, proof, err := f.cop.EncryptInput(alice).AddUint64(1).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	if _, err := f.eng.PlaceBet(ctx, alice, domain.AssetETH, handles[0], handles[1], proof, 9); !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	st, err := f.eng.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.StakePool != 0 {
		t.Fatalf("stake pool = %d after rolled-back placement, want 0", st.StakePool)
	}

	f.placeBet(t, alice, domain.AssetETH, 1, true, 9)
	st, _ = f.eng.State(ctx)
	if st.StakePool != 9 {
		t.Fatalf("stake pool = %d, want 9", st.StakePool)
	}
}

func TestCurrentDayIndex_TracksClock(t *testing.T) {
	f := newFixture(t)

	if got := f.eng.CurrentDayIndex(); got != f.day0 {
		t.Fatalf("CurrentDayIndex = %d, want %d", got, f.day0)
	}
	f.clock.Set((f.day0 + 3).Start())
	if got := f.eng.CurrentDayIndex(); got != f.day0+3 {
		t.Fatalf("CurrentDayIndex = %d, want %d", got, f.day0+3)
	}
}
