// Package router is a small fasthttp router for the ops endpoint. Paths
// may contain {name} segments whose values are stored as user values on
// the request.
package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

type Router struct {
	routes   map[string][]route
	notFound fasthttp.RequestHandler
}

type route struct {
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Handler dispatches by method, then by the first registered path that
// matches.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	parts := split(string(ctx.Path()))
	for _, rt := range r.routes[string(ctx.Method())] {
		if values, ok := match(parts, rt.segments); ok {
			for k, v := range values {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return
		}
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (r *Router) GET(path string, h fasthttp.RequestHandler) {
	r.Handle(fasthttp.MethodGet, path, h)
}

func (r *Router) Handle(method, path string, h fasthttp.RequestHandler) {
	parts := split(path)
	segs := make([]segment, len(parts))
	for i, p := range parts {
		if len(p) > 2 && strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			segs[i] = segment{name: p[1 : len(p)-1], isParam: true}
		} else {
			segs[i] = segment{name: p}
		}
	}
	r.routes[method] = append(r.routes[method], route{segments: segs, handler: h})
}

func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

// Param returns the value captured for a {name} segment.
func Param(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func match(parts []string, segs []segment) (map[string]string, bool) {
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}
