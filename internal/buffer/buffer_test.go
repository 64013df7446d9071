package buffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guildlytics/guildlytics-backend/internal/events"
)

func TestAppendDrainRoundTrip(t *testing.T) {
	buf := New()

	first := events.PresenceLogRow{UserID: "U1", UserName: "alice"}
	second := events.PresenceLogRow{UserID: "U2", UserName: "bob"}
	require.NoError(t, buf.Append(first))
	require.NoError(t, buf.Append(second))

	require.Equal(t, 2, buf.Size(events.CategoryPresenceLog))

	drained := buf.Drain(events.CategoryPresenceLog)
	require.Equal(t, []events.Record{first, second}, drained)

	require.Empty(t, buf.Drain(events.CategoryPresenceLog))
	require.Equal(t, 0, buf.Size(events.CategoryPresenceLog))
}

func TestAppendUnknownCategory(t *testing.T) {
	buf := New()

	err := buf.Append(unknownRecord{})
	require.Error(t, err)
	require.Empty(t, buf.Drain(events.Category("mystery")))
}

func TestRequeuePrependsBeforeNewerArrivals(t *testing.T) {
	buf := New()

	failed := []events.Record{
		events.ThreadRow{ThreadID: "T1"},
		events.ThreadRow{ThreadID: "T2"},
	}
	require.NoError(t, buf.Append(events.ThreadRow{ThreadID: "T3"}))
	buf.Requeue(events.CategoryThread, failed)

	drained := buf.Drain(events.CategoryThread)
	require.Equal(t, []events.Record{
		events.ThreadRow{ThreadID: "T1"},
		events.ThreadRow{ThreadID: "T2"},
		events.ThreadRow{ThreadID: "T3"},
	}, drained)
}

func TestCategoriesAreIndependent(t *testing.T) {
	buf := New()

	require.NoError(t, buf.Append(events.MessageCountRow{UserID: "U1", ChannelID: "C1", MessageCount: 1}))
	require.NoError(t, buf.Append(events.ThreadRow{ThreadID: "T1"}))

	require.Len(t, buf.Drain(events.CategoryMessageCount), 1)
	require.Equal(t, 1, buf.Size(events.CategoryThread))

	sizes := buf.Sizes()
	require.Equal(t, 0, sizes[events.CategoryMessageCount])
	require.Equal(t, 1, sizes[events.CategoryThread])
}

func TestConcurrentAppendsAreNeverLost(t *testing.T) {
	buf := New()

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				record := events.MessageDetailRow{
					MessageID: fmt.Sprintf("%d-%d", p, i),
					UserID:    fmt.Sprintf("U%d", p),
				}
				if err := buf.Append(record); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, record := range buf.Drain(events.CategoryMessageDetail) {
		row := record.(events.MessageDetailRow)
		seen[row.MessageID]++
	}

	require.Len(t, seen, producers*perProducer)
	for id, count := range seen {
		require.Equalf(t, 1, count, "message %s drained %d times", id, count)
	}
}

func TestAppendsDuringDrainLandInNextCycle(t *testing.T) {
	buf := New()

	const total = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			_ = buf.Append(events.PresenceLogRow{UserID: fmt.Sprintf("U%d", i)})
		}
	}()

	var drained int
	for {
		drained += len(buf.Drain(events.CategoryPresenceLog))
		select {
		case <-done:
			drained += len(buf.Drain(events.CategoryPresenceLog))
			require.Equal(t, total, drained)
			return
		default:
		}
	}
}

type unknownRecord struct{}

func (unknownRecord) Category() events.Category { return events.Category("mystery") }
