package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
)

type TemplateService interface {
	Create(ctx context.Context, content string) (*model.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Template, error)
	Update(ctx context.Context, id uuid.UUID, content string) (*model.Template, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int64, error)
}

type TemplateHandler struct {
	svc TemplateService
}

func RegisterTemplateRoutes(e *router.Group, h *TemplateHandler) {
	e.POST("/templates", h.CreateTemplate)
	e.GET("/templates/count", h.CountTemplates)
	e.GET("/templates/{id}", h.GetTemplate)
	e.PUT("/templates/{id}", h.UpdateTemplate)
	e.DELETE("/templates/{id}", h.DeleteTemplate)
}

func NewTemplateHandler(svc TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

type templateRequest struct {
	Content string `json:"content"`
}

type templateView struct {
	UUID    uuid.UUID `json:"uuid"`
	Content string    `json:"content"`
}

func (h *TemplateHandler) CreateTemplate(ctx *xhttp.RequestCtx) {
	var req templateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	tpl, err := h.svc.Create(ctx, req.Content)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, templateView{UUID: tpl.UUID, Content: tpl.Content})
}

func (h *TemplateHandler) GetTemplate(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	tpl, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if tpl == nil {
		writeError(ctx, 404, "not found")
		return
	}
	writeJSON(ctx, 200, templateView{UUID: tpl.UUID, Content: tpl.Content})
}

func (h *TemplateHandler) UpdateTemplate(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	var req templateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	tpl, err := h.svc.Update(ctx, id, req.Content)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, templateView{UUID: tpl.UUID, Content: tpl.Content})
}

func (h *TemplateHandler) CountTemplates(ctx *xhttp.RequestCtx) {
	count, err := h.svc.Size(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]int64{"count": count})
}

func (h *TemplateHandler) DeleteTemplate(ctx *xhttp.RequestCtx) {
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
