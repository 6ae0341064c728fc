package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
)

// snapshotBus serves canned snapshot entries to StreamRevRange and records
// nothing else.
type snapshotBus struct {
	snapshots []domain.StreamMessage
	scanErr   error
}

var _ domain.SignalBus = (*snapshotBus)(nil)

func (b *snapshotBus) Publish(context.Context, string, []byte) error { return nil }

func (b *snapshotBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *snapshotBus) StreamAppend(context.Context, string, map[string]string) error { return nil }

func (b *snapshotBus) StreamRead(context.Context, string, string, int, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *snapshotBus) StreamRevRange(context.Context, string, int) ([]domain.StreamMessage, error) {
	return b.snapshots, b.scanErr
}

func (b *snapshotBus) EnsureGroup(context.Context, string, string) error { return nil }

func (b *snapshotBus) StreamReadGroup(context.Context, string, string, string, string, int, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *snapshotBus) Ack(context.Context, string, string, ...string) error { return nil }

// fakePositions returns a scripted error from OpenGroup and records the group.
type fakePositions struct {
	openErr error
	opened  []domain.PositionGroup
}

var _ domain.PositionStore = (*fakePositions)(nil)

func (s *fakePositions) OpenGroup(_ context.Context, group domain.PositionGroup, _ domain.RiskLimits) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = append(s.opened, group)
	return nil
}

func (s *fakePositions) ListOpenWithLegs(context.Context) ([]domain.PositionGroup, error) {
	return nil, nil
}

func (s *fakePositions) GetByGroupID(context.Context, string) (domain.PositionGroup, error) {
	return domain.PositionGroup{}, domain.ErrNotFound
}

func (s *fakePositions) CountOpen(context.Context) (int64, error) { return 0, nil }

func (s *fakePositions) CountOpenBySymbol(context.Context, string) (int64, error) { return 0, nil }

func (s *fakePositions) CloseGroup(context.Context, domain.PositionGroup, domain.PositionEvent) error {
	return nil
}

func snapshotMessage(venue, symbol string, mark float64) domain.StreamMessage {
	snap := domain.FundingSnapshot{
		Venue:             venue,
		Symbol:            symbol,
		FundingRateRaw:    0.0001,
		SettleIntervalHrs: 8,
		MarkPrice:         domain.Float64Ptr(mark),
	}
	return domain.StreamMessage{ID: "1-0", Fields: snap.StreamFields(time.Now().UTC())}
}

func oppFields(t *testing.T) map[string]string {
	t.Helper()
	opp := domain.NewOpportunity("BTCUSDT", domain.VenueBinance, domain.VenueBitget,
		-0.0008, 0.0001, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return opp.StreamFields()
}

func testGateway(t *testing.T, bus domain.SignalBus, positions domain.PositionStore, mutate func(*runtimecfg.State)) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := runtimecfg.NewManager(logger)
	if mutate != nil {
		st := rt.Current()
		mutate(&st)
		rt.Apply(st)
	}
	return New(bus, positions, rt, nil, logger)
}

func TestHandleOpensSimulatedGroup(t *testing.T) {
	bus := &snapshotBus{snapshots: []domain.StreamMessage{
		snapshotMessage(domain.VenueBinance, "BTCUSDT", 65000),
		snapshotMessage(domain.VenueBitget, "BTCUSDT", 65010),
	}}
	positions := &fakePositions{}
	g := testGateway(t, bus, positions, nil)

	handled, err := g.handle(context.Background(), oppFields(t))
	require.NoError(t, err)
	assert.True(t, handled)

	require.Len(t, positions.opened, 1)
	group := positions.opened[0]
	assert.Equal(t, domain.GroupStatusOpen, group.Status)
	assert.True(t, group.Simulated)

	// Defaults: leverage 10, margin 100 -> 1000 notional per leg.
	assert.Equal(t, 1000.0, group.NotionalPerLeg)
	require.Len(t, group.Legs, 2)
	assert.Equal(t, 65000.0, group.Legs[0].EntryPrice)
	assert.Equal(t, 65010.0, group.Legs[1].EntryPrice)
	assert.Equal(t, domain.LegSideLong, group.Legs[0].Side)
	assert.Equal(t, domain.LegSideShort, group.Legs[1].Side)
}

func TestHandleEntryPriceFallback(t *testing.T) {
	// No snapshots in range: the simulated fill uses 1.0 so returns stay
	// defined.
	bus := &snapshotBus{}
	positions := &fakePositions{}
	g := testGateway(t, bus, positions, nil)

	handled, err := g.handle(context.Background(), oppFields(t))
	require.NoError(t, err)
	assert.True(t, handled)

	require.Len(t, positions.opened, 1)
	assert.Equal(t, 1.0, positions.opened[0].Legs[0].EntryPrice)
	assert.Equal(t, 1.0, positions.opened[0].Legs[1].EntryPrice)
}

func TestHandleScanErrorStillOpens(t *testing.T) {
	bus := &snapshotBus{scanErr: errors.New("redis down")}
	positions := &fakePositions{}
	g := testGateway(t, bus, positions, nil)

	handled, err := g.handle(context.Background(), oppFields(t))
	require.NoError(t, err)
	assert.True(t, handled)
	require.Len(t, positions.opened, 1)
	assert.Equal(t, 1.0, positions.opened[0].Legs[0].EntryPrice)
}

func TestHandleMalformedAcks(t *testing.T) {
	positions := &fakePositions{}
	g := testGateway(t, &snapshotBus{}, positions, nil)

	handled, err := g.handle(context.Background(), map[string]string{"symbol": "BTCUSDT"})
	require.NoError(t, err)
	assert.True(t, handled, "malformed entries are acked away")
	assert.Empty(t, positions.opened)
}

func TestHandleGlobalDisable(t *testing.T) {
	positions := &fakePositions{}
	g := testGateway(t, &snapshotBus{}, positions, func(st *runtimecfg.State) {
		st.GlobalEnable = false
	})

	handled, err := g.handle(context.Background(), oppFields(t))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, positions.opened)
}

func TestHandleAdmissionOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		openErr     error
		wantHandled bool
		wantErr     bool
	}{
		{name: "duplicate group acks", openErr: domain.ErrAlreadyExists, wantHandled: true},
		{name: "risk cap defers", openErr: domain.ErrDeferred, wantHandled: false},
		{name: "wrapped defer", openErr: fmt.Errorf("group cap reached: %w", domain.ErrDeferred), wantHandled: false},
		{name: "transient failure leaves pending", openErr: errors.New("pg down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := &fakePositions{openErr: tt.openErr}
			g := testGateway(t, &snapshotBus{}, positions, nil)

			handled, err := g.handle(context.Background(), oppFields(t))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHandled, handled)
		})
	}
}
