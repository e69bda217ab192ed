package xhttp

import (
	"strings"

	"github.com/fasthttp/router"
)

type Router = router.Router

// NewRouter returns a new Router
func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router whose fallback handlers answer with
// the same JSON error envelope the resource handlers use, so clients never
// see a plain-text body from this API.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

// NotFoundHandler is the default 404 handler
func NotFoundHandler(ctx *RequestCtx) {
	writeStatusError(ctx, StatusNotFound)
}

// MethodNotAllowedHandler is the default 405 handler
func MethodNotAllowedHandler(ctx *RequestCtx) {
	writeStatusError(ctx, StatusMethodNotAllowed)
}

func writeStatusError(ctx *RequestCtx, status int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyString(`{"error":"` + strings.ToLower(StatusText(status)) + `"}`)
}
