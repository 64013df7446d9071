package events

import (
	"testing"

	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

func TestParseCategory(t *testing.T) {
	for _, category := range Categories() {
		parsed, err := ParseCategory(string(category))
		if err != nil {
			t.Fatalf("parse %q: %v", category, err)
		}
		if parsed != category {
			t.Fatalf("expected %q, got %q", category, parsed)
		}
	}

	if _, err := ParseCategory("webhook"); err == nil {
		t.Fatal("expected error for unknown category")
	} else if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTableNameMapping(t *testing.T) {
	cases := map[Category]string{
		CategoryMember:        "dim_member",
		CategoryMessageCount:  "message_count",
		CategoryMessageDetail: "messages",
		CategoryVoiceSession:  "voice_channel",
		CategoryThread:        "thread",
		CategoryPresenceLog:   "daily_user_logins",
	}
	for category, want := range cases {
		got, err := TableName(category, "")
		if err != nil {
			t.Fatalf("table for %q: %v", category, err)
		}
		if got != want {
			t.Fatalf("table for %q: expected %q, got %q", category, want, got)
		}
	}
}

func TestTableNamePrefix(t *testing.T) {
	got, err := TableName(CategoryMember, "staging_")
	if err != nil {
		t.Fatalf("table with prefix: %v", err)
	}
	if got != "staging_dim_member" {
		t.Fatalf("expected staging_dim_member, got %q", got)
	}

	if _, err := TableName(Category("bogus"), ""); err == nil {
		t.Fatal("expected error for unmapped category")
	}
}

func TestRecordCategories(t *testing.T) {
	records := []Record{
		MemberRow{},
		MemberFieldUpdate{},
		MessageCountRow{},
		MessageDetailRow{},
		VoiceSessionRow{},
		ThreadRow{},
		PresenceLogRow{},
	}
	want := []Category{
		CategoryMember,
		CategoryMember,
		CategoryMessageCount,
		CategoryMessageDetail,
		CategoryVoiceSession,
		CategoryThread,
		CategoryPresenceLog,
	}
	for i, record := range records {
		if record.Category() != want[i] {
			t.Fatalf("record %d: expected category %q, got %q", i, want[i], record.Category())
		}
	}
}

func TestAllowedMemberColumn(t *testing.T) {
	for _, column := range []string{MemberColumnUserName, MemberColumnDisplayName, MemberColumnStatus, MemberColumnRole} {
		if !AllowedMemberColumn(column) {
			t.Fatalf("expected %q to be allowed", column)
		}
	}
	if AllowedMemberColumn("joined_at") {
		t.Fatal("joined_at must not be updatable")
	}
	if AllowedMemberColumn("user_id; DROP TABLE dim_member") {
		t.Fatal("hostile column name must not be allowed")
	}
}
