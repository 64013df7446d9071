package sink

import "fmt"

// Every write is a single MERGE over an UNNEST(@rows) array parameter, so a
// batch either applies completely or not at all and retries are idempotent.

func memberMergeSQL(tableID string) string {
	return fmt.Sprintf("MERGE `%s` AS target\n"+
		"USING UNNEST(@rows) AS source\n"+
		"ON target.user_id = source.user_id\n"+
		"WHEN MATCHED AND source.updated_at >= target.updated_at THEN UPDATE SET\n"+
		"  user_name = source.user_name,\n"+
		"  display_name = source.display_name,\n"+
		"  is_bot = source.is_bot,\n"+
		"  is_booster = source.is_booster,\n"+
		"  role = source.role,\n"+
		"  joined_at = source.joined_at,\n"+
		"  status = source.status,\n"+
		"  updated_at = source.updated_at\n"+
		"WHEN NOT MATCHED THEN INSERT\n"+
		"  (user_id, user_name, display_name, is_bot, is_booster, role, joined_at, status, updated_at)\n"+
		"VALUES\n"+
		"  (source.user_id, source.user_name, source.display_name, source.is_bot, source.is_booster, source.role, source.joined_at, source.status, source.updated_at)",
		tableID)
}

// memberFieldUpdateSQL targets one whitelisted column. The column name is
// interpolated because DML cannot parameterize identifiers; callers must pass
// only columns accepted by events.AllowedMemberColumn.
func memberFieldUpdateSQL(tableID, column string) string {
	return fmt.Sprintf("UPDATE `%s`\n"+
		"SET %s = @new_value, updated_at = @updated_at\n"+
		"WHERE user_id = @user_id AND updated_at <= @updated_at",
		tableID, column)
}

func additiveMergeSQL(tableID, quantityColumn string) string {
	return fmt.Sprintf("MERGE `%s` AS target\n"+
		"USING UNNEST(@rows) AS source\n"+
		"ON target.date = source.date AND target.user_id = source.user_id AND target.channel_id = source.channel_id\n"+
		"WHEN MATCHED THEN UPDATE SET\n"+
		"  %[2]s = target.%[2]s + source.%[2]s\n"+
		"WHEN NOT MATCHED THEN INSERT\n"+
		"  (date, user_id, channel_id, %[2]s)\n"+
		"VALUES\n"+
		"  (source.date, source.user_id, source.channel_id, source.%[2]s)",
		tableID, quantityColumn)
}

func messageDetailMergeSQL(tableID string) string {
	return fmt.Sprintf("MERGE `%s` AS target\n"+
		"USING UNNEST(@rows) AS source\n"+
		"ON target.message_id = source.message_id\n"+
		"WHEN NOT MATCHED THEN INSERT\n"+
		"  (message_id, created_at, user_id, channel_id, thread_id, message_content)\n"+
		"VALUES\n"+
		"  (source.message_id, source.created_at, source.user_id, source.channel_id, source.thread_id, source.message_content)",
		tableID)
}

func threadMergeSQL(tableID string) string {
	return fmt.Sprintf("MERGE `%s` AS target\n"+
		"USING UNNEST(@rows) AS source\n"+
		"ON target.thread_id = source.thread_id\n"+
		"WHEN NOT MATCHED THEN INSERT\n"+
		"  (created_at, user_id, thread_name, channel_id, thread_id)\n"+
		"VALUES\n"+
		"  (source.created_at, source.user_id, source.thread_name, source.channel_id, source.thread_id)",
		tableID)
}

func presenceLogMergeSQL(tableID string) string {
	return fmt.Sprintf("MERGE `%s` AS target\n"+
		"USING UNNEST(@rows) AS source\n"+
		"ON target.logged_at = source.logged_at AND target.user_id = source.user_id\n"+
		"WHEN NOT MATCHED THEN INSERT\n"+
		"  (logged_at, user_id, user_name)\n"+
		"VALUES\n"+
		"  (source.logged_at, source.user_id, source.user_name)",
		tableID)
}
