// Package router is a thin method+path router driven by the faio runtime:
// each dispatch runs its handler task under BlockOn, so spawns made by a
// handler are awaited before the response is returned. It exists as the
// seam toward HTTP session machinery, which lives outside this module.
package router

import (
	"strings"

	faio "github.com/superlxh02/faio"
)

// Params holds captured path parameters, keyed without the leading colon.
type Params map[string]string

// Request is the routed input.
type Request struct {
	Method string
	Path   string
	Params Params
	Body   []byte
}

// Response is filled by the handler.
type Response struct {
	Status int
	Body   []byte
}

// Handler builds the task frame that serves one request. The frame may
// suspend on any runtime awaiter and may spawn subtasks; Dispatch waits for
// all of them.
type Handler func(req *Request, resp *Response) faio.Frame

type route struct {
	method   string
	segments []string
	handler  Handler
}

// Router matches requests against registered patterns. Patterns are
// /-separated; a segment starting with ':' captures that path segment.
// Registration is not goroutine-safe; route before serving.
type Router struct {
	routes []route
}

// New returns an empty router.
func New() *Router {
	return &Router{}
}

// Handle registers a handler for a method and pattern.
func (r *Router) Handle(method, pattern string, h Handler) {
	r.routes = append(r.routes, route{
		method:   strings.ToUpper(method),
		segments: splitPath(pattern),
		handler:  h,
	})
}

// GET registers a GET handler.
func (r *Router) GET(pattern string, h Handler) { r.Handle("GET", pattern, h) }

// POST registers a POST handler.
func (r *Router) POST(pattern string, h Handler) { r.Handle("POST", pattern, h) }

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// lookup finds the first matching route and its captures.
func (r *Router) lookup(method, path string) (Handler, Params) {
	segs := splitPath(path)
	for _, rt := range r.routes {
		if rt.method != method || len(rt.segments) != len(segs) {
			continue
		}
		var params Params
		matched := true
		for i, pat := range rt.segments {
			if strings.HasPrefix(pat, ":") {
				if params == nil {
					params = make(Params)
				}
				params[pat[1:]] = segs[i]
				continue
			}
			if pat != segs[i] {
				matched = false
				break
			}
		}
		if matched {
			return rt.handler, params
		}
	}
	return nil, nil
}

// Dispatch routes the request and blocks until the handler task and every
// task it spawned have finished. An unmatched request yields status 404
// without entering the runtime.
func (r *Router) Dispatch(rt *faio.Runtime, method, path string, body []byte) *Response {
	method = strings.ToUpper(method)
	resp := &Response{Status: 200}
	h, params := r.lookup(method, path)
	if h == nil {
		resp.Status = 404
		return resp
	}
	req := &Request{Method: method, Path: path, Params: params, Body: body}
	rt.BlockOn(faio.NewTask(h(req, resp)))
	return resp
}
