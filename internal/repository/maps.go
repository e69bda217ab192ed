package repository

import (
	"strconv"
	"strings"

	"github.com/mkamali/notification-dispatch/pkg/sqlexpr"
)

// One DataMap per physical table. Metadata is constant; the maps are built
// once and shared by mappers, factories and queries. Aliases are generated
// from the table name ("notification_target" joins as NT).
var (
	notificationMap = sqlexpr.NewDataMap("notification",
		sqlexpr.ColumnDef{Name: "uuid", Type: sqlexpr.StorageUUID, Field: "uuid"},
		sqlexpr.ColumnDef{Name: "content", Type: sqlexpr.StorageText, Field: "content"},
		sqlexpr.ColumnDef{Name: "status", Type: sqlexpr.StorageText, Field: "status"},
		sqlexpr.ColumnDef{Name: "send_at", Type: sqlexpr.StorageTimestamp, Field: "sendAt"},
		sqlexpr.ColumnDef{Name: "sent_at", Type: sqlexpr.StorageTimestamp, Field: "sentAt"},
	)

	targetMap = sqlexpr.NewDataMap("target",
		sqlexpr.ColumnDef{Name: "uuid", Type: sqlexpr.StorageUUID, Field: "uuid"},
		sqlexpr.ColumnDef{Name: "name", Type: sqlexpr.StorageText, Field: "name"},
		sqlexpr.ColumnDef{Name: "phone_number", Type: sqlexpr.StorageText, Field: "phoneNumber"},
	)

	audienceMap = sqlexpr.NewDataMap("audience",
		sqlexpr.ColumnDef{Name: "uuid", Type: sqlexpr.StorageUUID, Field: "uuid"},
		sqlexpr.ColumnDef{Name: "name", Type: sqlexpr.StorageText, Field: "name"},
	)

	messageMap = sqlexpr.NewDataMap("message",
		sqlexpr.ColumnDef{Name: "id", Type: sqlexpr.StorageInteger, Field: "id"},
		sqlexpr.ColumnDef{Name: "from_phone", Type: sqlexpr.StorageText, Field: "from"},
		sqlexpr.ColumnDef{Name: "to_phone", Type: sqlexpr.StorageText, Field: "to"},
		sqlexpr.ColumnDef{Name: "content", Type: sqlexpr.StorageText, Field: "content"},
		sqlexpr.ColumnDef{Name: "status", Type: sqlexpr.StorageText, Field: "status"},
		sqlexpr.ColumnDef{Name: "notification_uuid", Type: sqlexpr.StorageUUID, Field: "notificationUUID"},
		sqlexpr.ColumnDef{Name: "external_id", Type: sqlexpr.StorageText, Field: "externalId"},
	)

	templateMap = sqlexpr.NewDataMapWithAlias("template", "TPL",
		sqlexpr.ColumnDef{Name: "uuid", Type: sqlexpr.StorageUUID, Field: "uuid"},
		sqlexpr.ColumnDef{Name: "content", Type: sqlexpr.StorageText, Field: "content"},
	)

	notificationTargetMap = sqlexpr.NewDataMap("notification_target",
		sqlexpr.ColumnDef{Name: "notification_uuid", Type: sqlexpr.StorageUUID, Field: "notificationUUID"},
		sqlexpr.ColumnDef{Name: "target_uuid", Type: sqlexpr.StorageUUID, Field: "targetUUID"},
	)

	notificationAudienceMap = sqlexpr.NewDataMap("notification_audience",
		sqlexpr.ColumnDef{Name: "notification_uuid", Type: sqlexpr.StorageUUID, Field: "notificationUUID"},
		sqlexpr.ColumnDef{Name: "audience_uuid", Type: sqlexpr.StorageUUID, Field: "audienceUUID"},
	)

	audienceTargetMap = sqlexpr.NewDataMap("audience_target",
		sqlexpr.ColumnDef{Name: "audience_uuid", Type: sqlexpr.StorageUUID, Field: "audienceUUID"},
		sqlexpr.ColumnDef{Name: "target_uuid", Type: sqlexpr.StorageUUID, Field: "targetUUID"},
	)
)

// placeholders renders "$1, $2, ..., $n" for insert value lists.
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ", ")
}

func insertInto(m *sqlexpr.DataMap) string {
	return "INSERT INTO " + m.Table() + " (" + m.ColumnString() + ") VALUES (" + placeholders(len(m.Columns())) + ")"
}
