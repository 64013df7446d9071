package events

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

// Category identifies one event stream with its own warehouse table,
// natural key, and flush cadence.
type Category string

const (
	CategoryMember        Category = "member"
	CategoryMessageCount  Category = "message_count"
	CategoryMessageDetail Category = "message_detail"
	CategoryVoiceSession  Category = "voice_session"
	CategoryThread        Category = "thread"
	CategoryPresenceLog   Category = "presence_log"
)

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryMember,
		CategoryMessageCount,
		CategoryMessageDetail,
		CategoryVoiceSession,
		CategoryThread,
		CategoryPresenceLog,
	}
}

// Valid reports whether the category is one of the known streams.
func (c Category) Valid() bool {
	switch c {
	case CategoryMember, CategoryMessageCount, CategoryMessageDetail,
		CategoryVoiceSession, CategoryThread, CategoryPresenceLog:
		return true
	default:
		return false
	}
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a raw string into a Category.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event category %q", raw))
	}
	return c, nil
}

var tableNames = map[Category]string{
	CategoryMember:        "dim_member",
	CategoryMessageCount:  "message_count",
	CategoryMessageDetail: "messages",
	CategoryVoiceSession:  "voice_channel",
	CategoryThread:        "thread",
	CategoryPresenceLog:   "daily_user_logins",
}

// TableName resolves the warehouse table for a category, applying the
// optional environment prefix (for example "staging_" in non-prod datasets).
func TableName(c Category, prefix string) (string, error) {
	name, ok := tableNames[c]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no table mapped for category %q", c))
	}
	return prefix + name, nil
}

// Record is any buffered event row. Implementations are immutable values;
// the buffer and sink never mutate them.
type Record interface {
	Category() Category
}

// MemberRow is the full profile snapshot for one guild member. Merged by
// user_id; the chronologically latest UpdatedAt wins.
type MemberRow struct {
	UserID      string    `bigquery:"user_id"`
	UserName    string    `bigquery:"user_name"`
	DisplayName string    `bigquery:"display_name"`
	IsBot       bool      `bigquery:"is_bot"`
	IsBooster   bool      `bigquery:"is_booster"`
	Role        string    `bigquery:"role"`
	JoinedAt    time.Time `bigquery:"joined_at"`
	Status      string    `bigquery:"status"`
	UpdatedAt   time.Time `bigquery:"updated_at"`
}

func (MemberRow) Category() Category { return CategoryMember }

// Member update columns that MemberFieldUpdate may touch. Anything else is
// rejected before it reaches the warehouse.
const (
	MemberColumnUserName    = "user_name"
	MemberColumnDisplayName = "display_name"
	MemberColumnStatus      = "status"
	MemberColumnRole        = "role"
)

var memberUpdateColumns = map[string]struct{}{
	MemberColumnUserName:    {},
	MemberColumnDisplayName: {},
	MemberColumnStatus:      {},
	MemberColumnRole:        {},
}

// AllowedMemberColumn reports whether a MemberFieldUpdate may target the
// named column.
func AllowedMemberColumn(column string) bool {
	_, ok := memberUpdateColumns[column]
	return ok
}

// MemberFieldUpdate is a partial profile change (rename, departure) applied
// as a single-column update after member merges. Travels under the member
// category.
type MemberFieldUpdate struct {
	UserID    string
	Column    string
	NewValue  string
	UpdatedAt time.Time
}

func (MemberFieldUpdate) Category() Category { return CategoryMember }

// MessageCountRow is one increment of the per-day message counter.
// Merge-sum on (date, user_id, channel_id).
type MessageCountRow struct {
	Date         civil.Date `bigquery:"date"`
	UserID       string     `bigquery:"user_id"`
	ChannelID    string     `bigquery:"channel_id"`
	MessageCount int64      `bigquery:"message_count"`
}

func (MessageCountRow) Category() Category { return CategoryMessageCount }

// Key is the natural key used for batch compaction.
func (r MessageCountRow) Key() string {
	return r.Date.String() + "|" + r.UserID + "|" + r.ChannelID
}

// MessageDetailRow is one message body. Insert-once on message_id.
type MessageDetailRow struct {
	MessageID      string    `bigquery:"message_id"`
	CreatedAt      time.Time `bigquery:"created_at"`
	UserID         string    `bigquery:"user_id"`
	ChannelID      string    `bigquery:"channel_id"`
	ThreadID       string    `bigquery:"thread_id"`
	MessageContent string    `bigquery:"message_content"`
}

func (MessageDetailRow) Category() Category { return CategoryMessageDetail }

// VoiceSessionRow is accumulated voice time for one user in one channel on
// one day. Merge-sum on (date, user_id, channel_id); the date comes from the
// session start.
type VoiceSessionRow struct {
	Date            civil.Date `bigquery:"date"`
	UserID          string     `bigquery:"user_id"`
	ChannelID       string     `bigquery:"channel_id"`
	DurationSeconds int64      `bigquery:"duration_seconds"`
}

func (VoiceSessionRow) Category() Category { return CategoryVoiceSession }

// Key is the natural key used for batch compaction.
func (r VoiceSessionRow) Key() string {
	return r.Date.String() + "|" + r.UserID + "|" + r.ChannelID
}

// ThreadRow records a thread creation. Insert-once on thread_id.
type ThreadRow struct {
	CreatedAt  time.Time `bigquery:"created_at"`
	UserID     string    `bigquery:"user_id"`
	ThreadName string    `bigquery:"thread_name"`
	ChannelID  string    `bigquery:"channel_id"`
	ThreadID   string    `bigquery:"thread_id"`
}

func (ThreadRow) Category() Category { return CategoryThread }

// PresenceLogRow marks a user coming online. Append-only on
// (logged_at, user_id); batches are deduplicated per user before write.
type PresenceLogRow struct {
	LoggedAt time.Time `bigquery:"logged_at"`
	UserID   string    `bigquery:"user_id"`
	UserName string    `bigquery:"user_name"`
}

func (PresenceLogRow) Category() Category { return CategoryPresenceLog }
