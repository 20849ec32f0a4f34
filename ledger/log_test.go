package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newBadgerLog(t *testing.T) *BadgerLog {
	t.Helper()
	l, err := OpenBadgerLog(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func backends(t *testing.T) map[string]Log {
	return map[string]Log{
		"memory": NewMemoryLog(),
		"badger": newBadgerLog(t),
	}
}

func ev(user, product string, kind core.EventKind, at time.Time) core.InteractionEvent {
	return core.InteractionEvent{UserID: user, ProductID: product, Kind: kind, Timestamp: at}
}

func TestLog_AppendAndEvents(t *testing.T) {
	ctx := context.Background()
	for name, log := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// 乱序写入
			require.NoError(t, log.Append(ctx, ev("u1", "p2", core.EventView, t0.Add(2*time.Hour))))
			require.NoError(t, log.Append(ctx, ev("u1", "p1", core.EventView, t0)))
			require.NoError(t, log.Append(ctx, ev("u1:x", "p9", core.EventView, t0)))
			require.NoError(t, log.Append(ctx, ev("u2", "p3", core.EventPurchase, t0)))

			got, err := log.Events(ctx, "u1", time.Time{})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "p1", got[0].ProductID)
			assert.Equal(t, "p2", got[1].ProductID)

			got, err = log.Events(ctx, "u1", t0.Add(time.Hour))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "p2", got[0].ProductID)

			none, err := log.Events(ctx, "nobody", time.Time{})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestLog_ScanAndSweep(t *testing.T) {
	ctx := context.Background()
	for name, log := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, log.Append(ctx, ev("u1", "old", core.EventView, t0.Add(-48*time.Hour))))
			require.NoError(t, log.Append(ctx, ev("u1", "new", core.EventView, t0)))
			require.NoError(t, log.Append(ctx, ev("u2", "new", core.EventCartAdd, t0)))

			var seen []string
			require.NoError(t, log.Scan(ctx, t0.Add(-time.Hour), func(e core.InteractionEvent) error {
				seen = append(seen, e.UserID+"/"+e.ProductID)
				return nil
			}))
			assert.ElementsMatch(t, []string{"u1/new", "u2/new"}, seen)

			n, err := log.Sweep(ctx, t0.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			left, err := log.Events(ctx, "u1", time.Time{})
			require.NoError(t, err)
			require.Len(t, left, 1)
			assert.Equal(t, "new", left[0].ProductID)
		})
	}
}
