package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
)

// DeliveryRecorder applies provider delivery reports to the owning
// notification.
type DeliveryRecorder interface {
	MarkDelivered(ctx context.Context, notificationID uuid.UUID, messageID int) error
	MarkFailed(ctx context.Context, notificationID uuid.UUID, messageID int) error
}

type CallbackHandler struct {
	svc DeliveryRecorder
}

func RegisterCallbackRoutes(e *router.Group, h *CallbackHandler) {
	e.POST("/callbacks/delivery", h.RecordDelivery)
}

func NewCallbackHandler(svc DeliveryRecorder) *CallbackHandler {
	return &CallbackHandler{svc: svc}
}

type deliveryCallbackRequest struct {
	MessageKey string `json:"message_key"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
}

// RecordDelivery receives asynchronous delivery reports. The message key is
// the same composite identity we hand the provider at send time.
func (h *CallbackHandler) RecordDelivery(ctx *xhttp.RequestCtx) {
	var req deliveryCallbackRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	notificationID, messageID, err := splitMessageKey(req.MessageKey)
	if err != nil {
		writeError(ctx, 400, "invalid message_key")
		return
	}

	switch strings.ToUpper(req.Status) {
	case "DELIVERED":
		err = h.svc.MarkDelivered(ctx, notificationID, messageID)
	case "FAILED":
		err = h.svc.MarkFailed(ctx, notificationID, messageID)
	default:
		writeError(ctx, 400, "unknown status: "+req.Status)
		return
	}
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]string{"result": "recorded"})
}

func splitMessageKey(key string) (uuid.UUID, int, error) {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 {
		return uuid.Nil, 0, strconv.ErrSyntax
	}
	notificationID, err := uuid.Parse(key[:idx])
	if err != nil {
		return uuid.Nil, 0, err
	}
	messageID, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return uuid.Nil, 0, err
	}
	return notificationID, messageID, nil
}
