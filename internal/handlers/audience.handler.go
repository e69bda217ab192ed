package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/services"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
)

type AudienceService interface {
	Create(ctx context.Context, req services.AudienceCreateRequest) (*model.Audience, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Audience, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*model.Audience, error)
	AddMember(ctx context.Context, audienceID, targetID uuid.UUID) error
	RemoveMember(ctx context.Context, audienceID, targetID uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int64, error)
}

type AudienceHandler struct {
	svc AudienceService
}

func RegisterAudienceRoutes(e *router.Group, h *AudienceHandler) {
	e.POST("/audiences", h.CreateAudience)
	e.GET("/audiences/count", h.CountAudiences)
	e.GET("/audiences/{id}", h.GetAudience)
	e.PUT("/audiences/{id}", h.RenameAudience)
	e.DELETE("/audiences/{id}", h.DeleteAudience)
	e.PUT("/audiences/{id}/members/{target_id}", h.AddMember)
	e.DELETE("/audiences/{id}/members/{target_id}", h.RemoveMember)
}

func NewAudienceHandler(svc AudienceService) *AudienceHandler {
	return &AudienceHandler{svc: svc}
}

type createAudienceRequest struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type renameAudienceRequest struct {
	Name string `json:"name"`
}

type audienceView struct {
	UUID    uuid.UUID    `json:"uuid"`
	Name    string       `json:"name"`
	Members []targetView `json:"members"`
}

func audienceToView(a *model.Audience) audienceView {
	v := audienceView{UUID: a.UUID, Name: a.Name, Members: []targetView{}}
	for _, t := range a.Members() {
		v.Members = append(v.Members, targetToView(t))
	}
	return v
}

func (h *AudienceHandler) CreateAudience(ctx *xhttp.RequestCtx) {
	var req createAudienceRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	a, err := h.svc.Create(ctx, services.AudienceCreateRequest{Name: req.Name, MemberIDs: req.MemberIDs})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, audienceToView(a))
}

func (h *AudienceHandler) GetAudience(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	a, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if a == nil {
		writeError(ctx, 404, "not found")
		return
	}
	writeJSON(ctx, 200, audienceToView(a))
}

func (h *AudienceHandler) RenameAudience(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}

	var req renameAudienceRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	a, err := h.svc.Rename(ctx, id, req.Name)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, audienceToView(a))
}

func (h *AudienceHandler) AddMember(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	targetID, err := paramUUID(ctx, "target_id")
	if err != nil {
		writeError(ctx, 400, "invalid target_id")
		return
	}

	if err := h.svc.AddMember(ctx, id, targetID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *AudienceHandler) RemoveMember(ctx *xhttp.RequestCtx) {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	targetID, err := paramUUID(ctx, "target_id")
	if err != nil {
		writeError(ctx, 400, "invalid target_id")
		return
	}

	if err := h.svc.RemoveMember(ctx, id, targetID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *AudienceHandler) CountAudiences(ctx *xhttp.RequestCtx) {
	count, err := h.svc.Size(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]int64{"count": count})
}

func (h *AudienceHandler) DeleteAudience(ctx *xhttp.RequestCtx) {
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
