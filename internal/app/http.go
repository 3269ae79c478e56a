package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"chatstore/pkg/chat/channels"
	"chatstore/pkg/router"
	"chatstore/pkg/state/logger"
)

const (
	maxTopK        = 1000
	limiterIdleTTL = 10 * time.Minute
)

func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if !a.ready.Load() || (a.pebble != nil && !a.pebble.Ready()) {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	resp := map[string]any{"status": "ok", "version": ver}
	if a.hwSensor != nil {
		disk, mem := a.hwSensor.Alerts()
		resp["disk_high"] = disk
		resp["mem_high"] = mem
	}
	router.WriteJSON(ctx, resp)
}

func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

// topHandlerFast serves GET /top/{ranking}?k=N.
func (a *App) topHandlerFast(ctx *fasthttp.RequestCtx) {
	k := 10
	if raw := string(ctx.QueryArgs().Peek("k")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxTopK {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "k must be an integer between 0 and "+strconv.Itoa(maxTopK))
			return
		}
		k = n
	}
	name := router.Param(ctx, "ranking")
	top, err := a.Top(context.Background(), name, k)
	if err != nil {
		if errors.Is(err, channels.ErrUnknownRanking) {
			router.WriteJSONError(ctx, fasthttp.StatusNotFound, err.Error())
			return
		}
		logger.Error("top_failed", "ranking", name, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
		return
	}
	if top == nil {
		top = []string{}
	}
	router.WriteJSON(ctx, map[string]any{"ranking": name, "k": k, "channels": top})
}

// channelHandlerFast serves GET /channels/{name}.
func (a *App) channelHandlerFast(ctx *fasthttp.RequestCtx) {
	name := router.Param(ctx, "name")
	ch, err := a.channels.Info(context.Background(), name)
	if err != nil {
		if errors.Is(err, channels.ErrChannelNotFound) {
			router.WriteJSONError(ctx, fasthttp.StatusNotFound, "channel not found")
			return
		}
		logger.Error("channel_info_failed", "channel", name, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
		return
	}
	router.WriteJSON(ctx, ch)
}

// opsHandler builds the routed, rate limited handler of the ops endpoint.
func (a *App) opsHandler() fasthttp.RequestHandler {
	r := router.New()
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})))
	r.GET("/top/{ranking}", a.topHandlerFast)
	r.GET("/channels/{name}", a.channelHandlerFast)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})

	rl := a.eff.Config.Server.RateLimit
	a.limiter = router.NewLimiter(rl.RPS, rl.Burst, limiterIdleTTL)
	return a.limiter.Middleware(r.Handler)
}

// startHTTP starts the ops endpoint on addr and returns a channel that
// delivers its terminal error.
func (a *App) startHTTP(addr string) <-chan error {
	const (
		readBufferSize       = 16 * 1024
		maxRequestBodySize   = 64 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Handler:              a.opsHandler(),
		Name:                 "chatstore",
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", addr)
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}

// sweepLimiter drops idle client buckets until ctx is done.
func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterIdleTTL)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			if n := a.limiter.Sweep(now); n > 0 {
				logger.Debug("rate_limiter_swept", "remaining", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
