package repository

// notificationMapper builds the parameterized SQL for the notification
// aggregate. All variable values are bound positionally; nothing is ever
// interpolated into the statement text.
type notificationMapper struct{}

func (notificationMapper) selectByID() string {
	m := notificationMap
	return "SELECT " + m.AliasedColumnString() +
		" FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (notificationMapper) exists() string {
	m := notificationMap
	return "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

// selectTargetsFor fetches the direct recipients through the
// notification/target association table.
func (notificationMapper) selectTargetsFor() string {
	t, nt := targetMap, notificationTargetMap
	return "SELECT " + t.AliasedColumnString() +
		" FROM " + t.AliasedTable() +
		" JOIN " + nt.AliasedTable() + " ON " + nt.Alias() + ".target_uuid = " + t.Alias() + ".uuid" +
		" WHERE " + nt.Alias() + ".notification_uuid = $1"
}

func (notificationMapper) selectMessagesFor() string {
	m := messageMap
	return "SELECT " + m.AliasedColumnString() +
		" FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".notification_uuid = $1" +
		" ORDER BY " + m.Alias() + ".id ASC"
}

func (notificationMapper) selectAudiencesFor() string {
	a, na := audienceMap, notificationAudienceMap
	return "SELECT " + a.AliasedColumnString() +
		" FROM " + a.AliasedTable() +
		" JOIN " + na.AliasedTable() + " ON " + na.Alias() + ".audience_uuid = " + a.Alias() + ".uuid" +
		" WHERE " + na.Alias() + ".notification_uuid = $1"
}

// selectMembersFor fetches the members of every associated audience in one
// pass. The leading audience_uuid column tells reconstitution which audience
// each member row belongs to.
func (notificationMapper) selectMembersFor() string {
	t, at, na := targetMap, audienceTargetMap, notificationAudienceMap
	return "SELECT " + at.Alias() + ".audience_uuid, " + t.AliasedColumnString() +
		" FROM " + t.AliasedTable() +
		" JOIN " + at.AliasedTable() + " ON " + at.Alias() + ".target_uuid = " + t.Alias() + ".uuid" +
		" JOIN " + na.AliasedTable() + " ON " + na.Alias() + ".audience_uuid = " + at.Alias() + ".audience_uuid" +
		" WHERE " + na.Alias() + ".notification_uuid = $1"
}

func (notificationMapper) insert() string {
	return insertInto(notificationMap)
}

func (notificationMapper) update() string {
	return "UPDATE " + notificationMap.Table() +
		" SET content = $1, status = $2, send_at = $3, sent_at = $4 WHERE uuid = $5"
}

func (notificationMapper) delete() string {
	return "DELETE FROM " + notificationMap.Table() + " WHERE uuid = $1"
}

func (notificationMapper) insertMessage() string {
	return insertInto(messageMap)
}

func (notificationMapper) updateMessage() string {
	return "UPDATE " + messageMap.Table() +
		" SET status = $1, external_id = $2 WHERE notification_uuid = $3 AND id = $4"
}

func (notificationMapper) deleteMessagesFor() string {
	return "DELETE FROM " + messageMap.Table() + " WHERE notification_uuid = $1"
}

func (notificationMapper) associateTarget() string {
	return insertInto(notificationTargetMap)
}

func (notificationMapper) associateAudience() string {
	return insertInto(notificationAudienceMap)
}

func (notificationMapper) disassociateTargets() string {
	return "DELETE FROM " + notificationTargetMap.Table() + " WHERE notification_uuid = $1"
}

func (notificationMapper) disassociateAudiences() string {
	return "DELETE FROM " + notificationAudienceMap.Table() + " WHERE notification_uuid = $1"
}

func (notificationMapper) count() string {
	return "SELECT COUNT(*) FROM " + notificationMap.Table()
}
