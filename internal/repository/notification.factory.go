package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// NotificationRowSet names the correlated result sets a full notification is
// rebuilt from. Making the stages named fields instead of an ordered list
// means a mis-wired stage fails to compile instead of silently mis-binding
// rows. A nil stage is simply skipped, so callers may fetch fewer joins.
type NotificationRowSet struct {
	Notification RowSource
	Targets      RowSource
	Messages     RowSource
	Audiences    RowSource
	Members      RowSource
}

// NotificationFactory reconstitutes notification aggregates from storage
// rows. Reconstitution is read-only: it drains the row sources it is handed
// and never writes back.
type NotificationFactory struct{}

// Reconstitute rebuilds one notification. It returns nil without an error
// when the notification stage holds no row.
func (f NotificationFactory) Reconstitute(rows NotificationRowSet) (*model.Notification, error) {
	if rows.Notification == nil {
		return nil, nil
	}
	if !rows.Notification.Next() {
		if err := rows.Notification.Err(); err != nil {
			return nil, pg.WrapStorage(err, "read notification row")
		}
		return nil, nil
	}

	var (
		id      uuid.UUID
		content string
		status  string
		sendAt  sql.NullTime
		sentAt  sql.NullTime
	)
	if err := rows.Notification.Scan(&id, &content, &status, &sendAt, &sentAt); err != nil {
		return nil, pg.WrapStorage(err, "scan notification row")
	}
	// Drain the stage; the next stage may not open until this one is exhausted.
	for rows.Notification.Next() {
	}
	if err := rows.Notification.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain notification rows")
	}

	n := model.ReconstituteNotification(id, content, model.NotificationStatus(status), nullableTime(sendAt), nullableTime(sentAt))

	if err := f.attachTargets(n, rows.Targets); err != nil {
		return nil, err
	}
	if err := f.attachMessages(n, rows.Messages); err != nil {
		return nil, err
	}
	if err := f.attachAudiences(n, rows.Audiences); err != nil {
		return nil, err
	}
	if err := f.attachMembers(n, rows.Members); err != nil {
		return nil, err
	}
	return n, nil
}

func (NotificationFactory) attachTargets(n *model.Notification, rows RowSource) error {
	if rows == nil {
		return nil
	}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return err
		}
		n.AddTarget(t)
	}
	return pg.WrapStorage(rows.Err(), "drain target rows")
}

func (NotificationFactory) attachMessages(n *model.Notification, rows RowSource) error {
	if rows == nil {
		return nil
	}
	var msgs []*model.Message
	for rows.Next() {
		var (
			id               int
			from, to         string
			content, status  string
			notificationUUID uuid.UUID
			externalID       string
		)
		if err := rows.Scan(&id, &from, &to, &content, &status, &notificationUUID, &externalID); err != nil {
			return pg.WrapStorage(err, "scan message row")
		}
		fromPhone, err := model.ParsePhoneNumber(from)
		if err != nil {
			return pg.WrapStorage(err, "message sender phone")
		}
		toPhone, err := model.ParsePhoneNumber(to)
		if err != nil {
			return pg.WrapStorage(err, "message recipient phone")
		}
		msgs = append(msgs, &model.Message{
			ID:         id,
			From:       fromPhone,
			To:         toPhone,
			Content:    content,
			Status:     model.MessageStatus(status),
			ExternalID: externalID,
		})
	}
	if err := rows.Err(); err != nil {
		return pg.WrapStorage(err, "drain message rows")
	}
	// Replacing the message set recomputes the aggregate status from the
	// message multiset; the stored status column is only a cache.
	n.SetMessages(msgs)
	return nil
}

func (NotificationFactory) attachAudiences(n *model.Notification, rows RowSource) error {
	if rows == nil {
		return nil
	}
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return pg.WrapStorage(err, "scan audience row")
		}
		n.AddAudience(model.ReconstituteAudience(id, name))
	}
	return pg.WrapStorage(rows.Err(), "drain audience rows")
}

// attachMembers matches each member row back to its owning audience through
// the audience_uuid column carried alongside the target columns.
func (NotificationFactory) attachMembers(n *model.Notification, rows RowSource) error {
	if rows == nil {
		return nil
	}
	for rows.Next() {
		var (
			audienceID uuid.UUID
			id         uuid.UUID
			name       string
			phone      string
		)
		if err := rows.Scan(&audienceID, &id, &name, &phone); err != nil {
			return pg.WrapStorage(err, "scan member row")
		}
		audience := n.Audience(audienceID)
		if audience == nil {
			continue
		}
		p, err := model.ParsePhoneNumber(phone)
		if err != nil {
			return pg.WrapStorage(err, "member phone")
		}
		audience.AddMember(&model.Target{UUID: id, Name: name, Phone: p})
	}
	return pg.WrapStorage(rows.Err(), "drain member rows")
}

func scanTarget(rows RowSource) (*model.Target, error) {
	var (
		id    uuid.UUID
		name  string
		phone string
	)
	if err := rows.Scan(&id, &name, &phone); err != nil {
		return nil, pg.WrapStorage(err, "scan target row")
	}
	p, err := model.ParsePhoneNumber(phone)
	if err != nil {
		return nil, pg.WrapStorage(err, "target phone")
	}
	return &model.Target{UUID: id, Name: name, Phone: p}, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
