package sink

import (
	"fmt"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

// Compaction collapses batch-internal duplicates before the merge statement
// runs. BigQuery rejects a MERGE whose source matches the same target row
// twice, so every compacted batch must carry unique natural keys.

func errUnexpectedRecord(record events.Record, category events.Category) error {
	return pkgerrors.New(pkgerrors.CodeInternal,
		fmt.Sprintf("record of type %T does not belong to category %q", record, category))
}

// compactMembers splits a member batch into full snapshots and partial field
// updates. Snapshots keep the chronologically latest row per user; on equal
// timestamps the later arrival wins.
func compactMembers(batch []events.Record) ([]events.MemberRow, []events.MemberFieldUpdate, error) {
	index := make(map[string]int)
	var rows []events.MemberRow
	var updates []events.MemberFieldUpdate
	for _, record := range batch {
		switch row := record.(type) {
		case events.MemberRow:
			if i, ok := index[row.UserID]; ok {
				if !row.UpdatedAt.Before(rows[i].UpdatedAt) {
					rows[i] = row
				}
				continue
			}
			index[row.UserID] = len(rows)
			rows = append(rows, row)
		case events.MemberFieldUpdate:
			updates = append(updates, row)
		default:
			return nil, nil, errUnexpectedRecord(record, events.CategoryMember)
		}
	}
	return rows, updates, nil
}

func compactMessageCounts(batch []events.Record) ([]events.MessageCountRow, error) {
	index := make(map[string]int)
	var rows []events.MessageCountRow
	for _, record := range batch {
		row, ok := record.(events.MessageCountRow)
		if !ok {
			return nil, errUnexpectedRecord(record, events.CategoryMessageCount)
		}
		if i, ok := index[row.Key()]; ok {
			rows[i].MessageCount += row.MessageCount
			continue
		}
		index[row.Key()] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

func compactVoiceSessions(batch []events.Record) ([]events.VoiceSessionRow, error) {
	index := make(map[string]int)
	var rows []events.VoiceSessionRow
	for _, record := range batch {
		row, ok := record.(events.VoiceSessionRow)
		if !ok {
			return nil, errUnexpectedRecord(record, events.CategoryVoiceSession)
		}
		if i, ok := index[row.Key()]; ok {
			rows[i].DurationSeconds += row.DurationSeconds
			continue
		}
		index[row.Key()] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

// compactMessageDetails keeps the first row per message id.
func compactMessageDetails(batch []events.Record) ([]events.MessageDetailRow, error) {
	seen := make(map[string]struct{})
	var rows []events.MessageDetailRow
	for _, record := range batch {
		row, ok := record.(events.MessageDetailRow)
		if !ok {
			return nil, errUnexpectedRecord(record, events.CategoryMessageDetail)
		}
		if _, ok := seen[row.MessageID]; ok {
			continue
		}
		seen[row.MessageID] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}

// compactThreads keeps the first row per thread id.
func compactThreads(batch []events.Record) ([]events.ThreadRow, error) {
	seen := make(map[string]struct{})
	var rows []events.ThreadRow
	for _, record := range batch {
		row, ok := record.(events.ThreadRow)
		if !ok {
			return nil, errUnexpectedRecord(record, events.CategoryThread)
		}
		if _, ok := seen[row.ThreadID]; ok {
			continue
		}
		seen[row.ThreadID] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}

// compactPresenceLogs keeps one login row per user per batch, the earliest
// seen.
func compactPresenceLogs(batch []events.Record) ([]events.PresenceLogRow, error) {
	seen := make(map[string]struct{})
	var rows []events.PresenceLogRow
	for _, record := range batch {
		row, ok := record.(events.PresenceLogRow)
		if !ok {
			return nil, errUnexpectedRecord(record, events.CategoryPresenceLog)
		}
		if _, ok := seen[row.UserID]; ok {
			continue
		}
		seen[row.UserID] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}
