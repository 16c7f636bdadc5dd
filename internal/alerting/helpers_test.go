package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/notify"
	"github.com/kozaktomas/reunite/internal/storage"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*notify.Alert
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, a *notify.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() *notify.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

var errSMTPDown = errors.New("dial tcp: connection refused")

// fixture is a store seeded with one identity and a few stations.
type fixture struct {
	store  *mock.Store
	images *storage.MemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: mock.NewStore(), images: storage.NewMemStore()}

	require.NoError(t, f.store.SaveIdentity(ctx, &database.Identity{
		ID:           "MP-001",
		Name:         "Jana Novak",
		HandlerEmail: "officer@police.example",
		ContactEmail: "family@example.org",
	}))
	for _, s := range []database.Station{
		{Name: "Central", Email: "central@police.example", Location: &geo.Point{Lat: 50.0870, Lon: 14.4210}},
		{Name: "River", Email: "river@police.example", Location: &geo.Point{Lat: 50.0755, Lon: 14.4378}},
		{Name: "Silent", Email: "", Location: &geo.Point{Lat: 50.0860, Lon: 14.4200}},
		{Name: "Far", Email: "far@police.example", Location: &geo.Point{Lat: 49.1951, Lon: 16.6068}},
	} {
		s := s
		require.NoError(t, f.store.UpsertStation(ctx, &s))
	}
	return f
}

func detection(identity string, sim float64) facematch.Detection {
	return facematch.Detection{
		IdentityID: identity,
		Similarity: sim,
		BBox:       database.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4},
		Location:   &geo.Point{Lat: 50.0865, Lon: 14.4205},
	}
}

// admitted logs one detection and admits an alert for it at now.
func (f *fixture) admitted(t *testing.T, now time.Time) *database.AlertRecord {
	t.Helper()
	ctx := context.Background()
	ev, err := NewEvidenceLogger(f.store, f.images, nil, nil).Log(ctx, []byte("frame"), detection("MP-001", 0.83), now)
	require.NoError(t, err)
	alert, ok, err := NewThrottle(f.store, time.Minute, nil, nil).Admit(ctx, "MP-001", ev.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	return alert
}
