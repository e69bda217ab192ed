package xhttp

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestRequestLoggerMiddleware_RequestID(t *testing.T) {
	t.Run("echoes the client request id", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.SetMethod("GET")
		ctx.Request.SetRequestURI("/api/v1/notifications")
		ctx.Request.Header.Set("X-Request-Id", "req-42")

		RequestLoggerMiddleware(func(ctx *RequestCtx) {
			ctx.Response.SetStatusCode(StatusOK)
		})(ctx)

		assert.Equal(t, "req-42", string(ctx.Response.Header.Peek("X-Request-Id")))
	})

	t.Run("mints an id when the client sent none", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.SetMethod("GET")
		ctx.Request.SetRequestURI("/api/v1/notifications")

		RequestLoggerMiddleware(func(ctx *RequestCtx) {
			ctx.Response.SetStatusCode(StatusOK)
		})(ctx)

		rid := string(ctx.Response.Header.Peek("X-Request-Id"))
		_, err := uuid.Parse(rid)
		assert.NoError(t, err)
	})

	t.Run("skips probe paths", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.SetMethod("GET")
		ctx.Request.SetRequestURI("/api/v1/health")

		RequestLoggerMiddleware(func(ctx *RequestCtx) {
			ctx.Response.SetStatusCode(StatusOK)
		})(ctx)

		assert.Empty(t, ctx.Response.Header.Peek("X-Request-Id"))
	})
}

func TestRecoverMiddleware(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/boom")

	RecoverMiddleware(func(ctx *RequestCtx) {
		panic("boom")
	})(ctx)

	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}

func TestDefaultRouterFallbacks(t *testing.T) {
	t.Run("not found answers with the JSON envelope", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		NotFoundHandler(ctx)

		assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
		assert.Equal(t, "application/json; charset=utf-8", string(ctx.Response.Header.ContentType()))

		var body map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
		assert.Equal(t, "not found", body["error"])
	})

	t.Run("method not allowed answers 405", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		MethodNotAllowedHandler(ctx)

		assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())

		var body map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
		assert.Equal(t, "method not allowed", body["error"])
	})
}
