package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/services"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
)

type TargetService interface {
	Create(ctx context.Context, req services.TargetCreateRequest) (*model.Target, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Target, error)
	Update(ctx context.Context, req services.TargetUpdateRequest) (*model.Target, error)
	FindByName(ctx context.Context, fragment string, limit int) ([]*model.Target, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int64, error)
}

type TargetHandler struct {
	svc TargetService
}

func RegisterTargetRoutes(e *router.Group, h *TargetHandler) {
	e.POST("/targets", h.CreateTarget)
	e.GET("/targets", h.ListTargets)
	e.GET("/targets/count", h.CountTargets)
	e.GET("/targets/{id}", h.GetTarget)
	e.PUT("/targets/{id}", h.UpdateTarget)
	e.DELETE("/targets/{id}", h.DeleteTarget)
}

func NewTargetHandler(svc TargetService) *TargetHandler {
	return &TargetHandler{svc: svc}
}

type targetRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type targetView struct {
	UUID        uuid.UUID `json:"uuid"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
}

func targetToView(t *model.Target) targetView {
	return targetView{UUID: t.UUID, Name: t.Name, PhoneNumber: t.Phone.String()}
}

type targetListResponse struct {
	Items []targetView `json:"items"`
}

func (h *TargetHandler) CreateTarget(ctx *xhttp.RequestCtx) {
	var req targetRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	t, err := h.svc.Create(ctx, services.TargetCreateRequest{Name: req.Name, PhoneNumber: req.PhoneNumber})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, targetToView(t))
}

func (h *TargetHandler) GetTarget(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	t, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if t == nil {
		writeError(ctx, 404, "not found")
		return
	}
	writeJSON(ctx, 200, targetToView(t))
}

func (h *TargetHandler) UpdateTarget(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	var req targetRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	t, err := h.svc.Update(ctx, services.TargetUpdateRequest{UUID: id, Name: req.Name, PhoneNumber: req.PhoneNumber})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, targetToView(t))
}

// ListTargets matches on a name fragment; an empty fragment lists by name.
func (h *TargetHandler) ListTargets(ctx *xhttp.RequestCtx) {
	items, err := h.svc.FindByName(ctx, query(ctx, "name"), queryInt(ctx, "limit"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	resp := targetListResponse{Items: make([]targetView, 0, len(items))}
	for _, t := range items {
		resp.Items = append(resp.Items, targetToView(t))
	}
	writeJSON(ctx, 200, resp)
}

func (h *TargetHandler) CountTargets(ctx *xhttp.RequestCtx) {
	count, err := h.svc.Size(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]int64{"count": count})
}

func (h *TargetHandler) DeleteTarget(ctx *xhttp.RequestCtx) {
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
