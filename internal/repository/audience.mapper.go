package repository

// audienceMapper builds the parameterized SQL for the audience aggregate.
type audienceMapper struct{}

func (audienceMapper) selectByID() string {
	m := audienceMap
	return "SELECT " + m.AliasedColumnString() +
		" FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (audienceMapper) exists() string {
	m := audienceMap
	return "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

// selectMembersFor fetches member targets through the audience/target
// association table.
func (audienceMapper) selectMembersFor() string {
	t, at := targetMap, audienceTargetMap
	return "SELECT " + t.AliasedColumnString() +
		" FROM " + t.AliasedTable() +
		" JOIN " + at.AliasedTable() + " ON " + at.Alias() + ".target_uuid = " + t.Alias() + ".uuid" +
		" WHERE " + at.Alias() + ".audience_uuid = $1"
}

func (audienceMapper) insert() string {
	return insertInto(audienceMap)
}

func (audienceMapper) update() string {
	return "UPDATE " + audienceMap.Table() + " SET name = $1 WHERE uuid = $2"
}

func (audienceMapper) delete() string {
	return "DELETE FROM " + audienceMap.Table() + " WHERE uuid = $1"
}

func (audienceMapper) associateMember() string {
	return insertInto(audienceTargetMap)
}

func (audienceMapper) disassociateMember() string {
	return "DELETE FROM " + audienceTargetMap.Table() +
		" WHERE audience_uuid = $1 AND target_uuid = $2"
}

func (audienceMapper) disassociateMembers() string {
	return "DELETE FROM " + audienceTargetMap.Table() + " WHERE audience_uuid = $1"
}

func (audienceMapper) disassociateNotifications() string {
	return "DELETE FROM " + notificationAudienceMap.Table() + " WHERE audience_uuid = $1"
}

func (audienceMapper) count() string {
	return "SELECT COUNT(*) FROM " + audienceMap.Table()
}
