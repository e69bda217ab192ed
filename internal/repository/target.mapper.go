package repository

// targetMapper builds the parameterized SQL for the target aggregate.
type targetMapper struct{}

func (targetMapper) selectByID() string {
	m := targetMap
	return "SELECT " + m.AliasedColumnString() +
		" FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (targetMapper) exists() string {
	m := targetMap
	return "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (targetMapper) insert() string {
	return insertInto(targetMap)
}

func (targetMapper) update() string {
	return "UPDATE " + targetMap.Table() +
		" SET name = $1, phone_number = $2 WHERE uuid = $3"
}

func (targetMapper) delete() string {
	return "DELETE FROM " + targetMap.Table() + " WHERE uuid = $1"
}

// Targets are shared by reference; removing one must first cut the links held
// by notifications and audiences.
func (targetMapper) disassociateNotifications() string {
	return "DELETE FROM " + notificationTargetMap.Table() + " WHERE target_uuid = $1"
}

func (targetMapper) disassociateAudiences() string {
	return "DELETE FROM " + audienceTargetMap.Table() + " WHERE target_uuid = $1"
}

func (targetMapper) count() string {
	return "SELECT COUNT(*) FROM " + targetMap.Table()
}
