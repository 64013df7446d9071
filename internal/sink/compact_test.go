package sink

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/guildlytics/guildlytics-backend/internal/events"
)

var day = civil.Date{Year: 2024, Month: 1, Day: 1}

func TestCompactMessageCountsSumsDuplicateKeys(t *testing.T) {
	rows, err := compactMessageCounts([]events.Record{
		events.MessageCountRow{Date: day, UserID: "U1", ChannelID: "C1", MessageCount: 3},
		events.MessageCountRow{Date: day, UserID: "U1", ChannelID: "C1", MessageCount: 2},
		events.MessageCountRow{Date: day, UserID: "U2", ChannelID: "C1", MessageCount: 1},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(5), rows[0].MessageCount)
	require.Equal(t, "U1", rows[0].UserID)
	require.Equal(t, int64(1), rows[1].MessageCount)
}

func TestCompactVoiceSessionsSumsDurations(t *testing.T) {
	rows, err := compactVoiceSessions([]events.Record{
		events.VoiceSessionRow{Date: day, UserID: "U1", ChannelID: "C1", DurationSeconds: 60},
		events.VoiceSessionRow{Date: day, UserID: "U1", ChannelID: "C1", DurationSeconds: 30},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(90), rows[0].DurationSeconds)
}

func TestCompactMembersLatestStateWins(t *testing.T) {
	earlier := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	rows, updates, err := compactMembers([]events.Record{
		events.MemberRow{UserID: "U1", UserName: "old", UpdatedAt: later},
		events.MemberRow{UserID: "U1", UserName: "stale", UpdatedAt: earlier},
		events.MemberFieldUpdate{UserID: "U2", Column: events.MemberColumnStatus, NewValue: "left", UpdatedAt: later},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "old", rows[0].UserName)
	require.Len(t, updates, 1)
	require.Equal(t, "left", updates[0].NewValue)
}

func TestCompactMembersEqualTimestampLaterArrivalWins(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	rows, _, err := compactMembers([]events.Record{
		events.MemberRow{UserID: "U1", UserName: "first", UpdatedAt: at},
		events.MemberRow{UserID: "U1", UserName: "second", UpdatedAt: at},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "second", rows[0].UserName)
}

func TestCompactMessageDetailsDeduplicatesByID(t *testing.T) {
	rows, err := compactMessageDetails([]events.Record{
		events.MessageDetailRow{MessageID: "M1", MessageContent: "hello"},
		events.MessageDetailRow{MessageID: "M1", MessageContent: "redelivered"},
		events.MessageDetailRow{MessageID: "M2"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "hello", rows[0].MessageContent)
}

func TestCompactPresenceLogsOneRowPerUser(t *testing.T) {
	morning := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	rows, err := compactPresenceLogs([]events.Record{
		events.PresenceLogRow{UserID: "U1", LoggedAt: morning},
		events.PresenceLogRow{UserID: "U1", LoggedAt: morning.Add(2 * time.Hour)},
		events.PresenceLogRow{UserID: "U2", LoggedAt: morning},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, morning, rows[0].LoggedAt)
}

func TestCompactRejectsForeignRecords(t *testing.T) {
	_, err := compactThreads([]events.Record{events.PresenceLogRow{UserID: "U1"}})
	require.Error(t, err)

	_, _, err = compactMembers([]events.Record{events.ThreadRow{ThreadID: "T1"}})
	require.Error(t, err)
}
