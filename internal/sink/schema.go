package sink

import (
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

var schemas = map[events.Category]bigquery.Schema{
	events.CategoryMember: {
		{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "user_name", Type: bigquery.StringFieldType},
		{Name: "display_name", Type: bigquery.StringFieldType},
		{Name: "is_bot", Type: bigquery.BooleanFieldType},
		{Name: "is_booster", Type: bigquery.BooleanFieldType},
		{Name: "role", Type: bigquery.StringFieldType},
		{Name: "joined_at", Type: bigquery.TimestampFieldType},
		{Name: "status", Type: bigquery.StringFieldType},
		{Name: "updated_at", Type: bigquery.TimestampFieldType},
	},
	events.CategoryMessageCount: {
		{Name: "date", Type: bigquery.DateFieldType, Required: true},
		{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "channel_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "message_count", Type: bigquery.IntegerFieldType},
	},
	events.CategoryMessageDetail: {
		{Name: "message_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "created_at", Type: bigquery.TimestampFieldType},
		{Name: "user_id", Type: bigquery.StringFieldType},
		{Name: "channel_id", Type: bigquery.StringFieldType},
		{Name: "thread_id", Type: bigquery.StringFieldType},
		{Name: "message_content", Type: bigquery.StringFieldType},
	},
	events.CategoryVoiceSession: {
		{Name: "date", Type: bigquery.DateFieldType, Required: true},
		{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "channel_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "duration_seconds", Type: bigquery.IntegerFieldType},
	},
	events.CategoryThread: {
		{Name: "created_at", Type: bigquery.TimestampFieldType},
		{Name: "user_id", Type: bigquery.StringFieldType},
		{Name: "thread_name", Type: bigquery.StringFieldType},
		{Name: "channel_id", Type: bigquery.StringFieldType},
		{Name: "thread_id", Type: bigquery.StringFieldType, Required: true},
	},
	events.CategoryPresenceLog: {
		{Name: "logged_at", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "user_name", Type: bigquery.StringFieldType},
	},
}

func tableSchema(category events.Category) (bigquery.Schema, error) {
	schema, ok := schemas[category]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("no schema defined for category %q", category))
	}
	return schema, nil
}
