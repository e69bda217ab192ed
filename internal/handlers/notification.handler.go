package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/services"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
)

type NotificationService interface {
	Create(ctx context.Context, req services.NotificationCreateRequest) (*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListByStatus(ctx context.Context, status model.NotificationStatus, limit, skip int) ([]*model.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int64, error)
}

type NotificationHandler struct {
	svc NotificationService
}

func RegisterNotificationRoutes(e *router.Group, h *NotificationHandler) {
	e.POST("/notifications", h.CreateNotification)
	e.GET("/notifications", h.ListNotifications)
	e.GET("/notifications/count", h.CountNotifications)
	e.GET("/notifications/{id}", h.GetNotification)
	e.POST("/notifications/{id}/cancel", h.CancelNotification)
	e.DELETE("/notifications/{id}", h.DeleteNotification)
}

func NewNotificationHandler(svc NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type createNotificationRequest struct {
	Content      string            `json:"content"`
	TemplateID   *uuid.UUID        `json:"template_id,omitempty"`
	TemplateArgs map[string]string `json:"template_args,omitempty"`
	SendAt       *time.Time        `json:"send_at,omitempty"`
	TargetIDs    []uuid.UUID       `json:"target_ids"`
	AudienceIDs  []uuid.UUID       `json:"audience_ids"`
}

type messageView struct {
	ID         int    `json:"id"`
	To         string `json:"to"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
}

type notificationView struct {
	UUID        uuid.UUID     `json:"uuid"`
	Content     string        `json:"content"`
	Status      string        `json:"status"`
	SendAt      *time.Time    `json:"send_at,omitempty"`
	SentAt      *time.Time    `json:"sent_at,omitempty"`
	TargetIDs   []uuid.UUID   `json:"target_ids"`
	AudienceIDs []uuid.UUID   `json:"audience_ids"`
	Messages    []messageView `json:"messages"`
}

func notificationToView(n *model.Notification) notificationView {
	v := notificationView{
		UUID:        n.UUID,
		Content:     n.Content,
		Status:      string(n.Status),
		SendAt:      n.SendAt,
		SentAt:      n.SentAt,
		TargetIDs:   n.TargetIDs(),
		AudienceIDs: n.AudienceIDs(),
	}
	for _, m := range n.Messages() {
		v.Messages = append(v.Messages, messageView{
			ID:         m.ID,
			To:         m.To.String(),
			Status:     string(m.Status),
			ExternalID: m.ExternalID,
		})
	}
	return v
}

type notificationListResponse struct {
	Items []notificationView `json:"items"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *NotificationHandler) CreateNotification(ctx *xhttp.RequestCtx) {
	var req createNotificationRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	n, err := h.svc.Create(ctx, services.NotificationCreateRequest{
		Content:      req.Content,
		TemplateID:   req.TemplateID,
		TemplateArgs: req.TemplateArgs,
		SendAt:       req.SendAt,
		TargetIDs:    req.TargetIDs,
		AudienceIDs:  req.AudienceIDs,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, notificationToView(n))
}

func (h *NotificationHandler) GetNotification(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	n, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if n == nil {
		writeError(ctx, 404, "not found")
		return
	}
	writeJSON(ctx, 200, notificationToView(n))
}

func (h *NotificationHandler) ListNotifications(ctx *xhttp.RequestCtx) {
	status := model.NotificationStatus(query(ctx, "status"))
	if status == "" {
		writeError(ctx, 400, "status query parameter is required")
		return
	}

	items, err := h.svc.ListByStatus(ctx, status, queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	resp := notificationListResponse{Items: make([]notificationView, 0, len(items))}
	for _, n := range items {
		resp.Items = append(resp.Items, notificationToView(n))
	}
	writeJSON(ctx, 200, resp)
}

func (h *NotificationHandler) CountNotifications(ctx *xhttp.RequestCtx) {
	count, err := h.svc.Size(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]int64{"count": count})
}

func (h *NotificationHandler) CancelNotification(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	n, err := h.svc.Cancel(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, notificationToView(n))
}

func (h *NotificationHandler) DeleteNotification(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	if err := h.svc.Remove(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}
