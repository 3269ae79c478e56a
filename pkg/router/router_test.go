package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func request(h fasthttp.RequestHandler, method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	h(&ctx)
	return &ctx
}

func TestRoutingAndParams(t *testing.T) {
	r := New()
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) { WriteJSON(ctx, map[string]string{"status": "ok"}) })
	r.GET("/top/{ranking}", func(ctx *fasthttp.RequestCtx) {
		WriteJSON(ctx, map[string]string{"ranking": Param(ctx, "ranking")})
	})
	r.NotFound(func(ctx *fasthttp.RequestCtx) { WriteJSONError(ctx, fasthttp.StatusNotFound, "not found") })

	ctx := request(r.Handler, "GET", "/healthz")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = request(r.Handler, "GET", "/top/members/")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	require.Equal(t, "members", body["ranking"])

	ctx = request(r.Handler, "POST", "/healthz")
	require.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = request(r.Handler, "GET", "/top")
	require.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	require.Equal(t, "not found", body["error"])
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(1, 2, time.Minute)
	now := time.Unix(100, 0)
	require.True(t, l.AllowAt("a", now))
	require.True(t, l.AllowAt("a", now))
	require.False(t, l.AllowAt("a", now))
	require.True(t, l.AllowAt("b", now))
	require.True(t, l.AllowAt("a", now.Add(1100*time.Millisecond)))

	require.Equal(t, 2, l.Sweep(now.Add(30*time.Second)))
	require.Equal(t, 0, l.Sweep(now.Add(5*time.Minute)))
}

func TestLimiterMiddleware(t *testing.T) {
	l := NewLimiter(0.001, 1, time.Minute)
	calls := 0
	h := l.Middleware(func(ctx *fasthttp.RequestCtx) { calls++ })
	request(h, "GET", "/x")
	ctx := request(h, "GET", "/x")
	require.Equal(t, 1, calls)
	require.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())
}
