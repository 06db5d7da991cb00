package router

import (
	"sync/atomic"
	"testing"

	faio "github.com/superlxh02/faio"
)

func newTestRuntime(t *testing.T) *faio.Runtime {
	t.Helper()
	rt, err := faio.New(faio.Config{NumWorkers: 2})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(rt.Stop)
	return rt
}

func TestDispatchEchoesParam(t *testing.T) {
	rt := newTestRuntime(t)
	r := New()
	r.GET("/users/:id", func(req *Request, resp *Response) faio.Frame {
		return func(faio.Ctx) faio.Step {
			resp.Status = 200
			resp.Body = []byte(req.Params["id"])
			return faio.StepDone
		}
	})

	resp := r.Dispatch(rt, "GET", "/users/123", nil)
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "123" {
		t.Fatalf("body = %q, want 123", resp.Body)
	}
}

func TestDispatchWaitsForHandlerSpawns(t *testing.T) {
	rt := newTestRuntime(t)
	var side atomic.Int64
	r := New()
	r.POST("/jobs", func(req *Request, resp *Response) faio.Frame {
		return func(cx faio.Ctx) faio.Step {
			for i := 0; i < 10; i++ {
				cx.Spawn(faio.NewTask(func(faio.Ctx) faio.Step {
					side.Add(1)
					return faio.StepDone
				}))
			}
			resp.Status = 202
			return faio.StepDone
		}
	})

	resp := r.Dispatch(rt, "POST", "/jobs", nil)
	if resp.Status != 202 {
		t.Fatalf("status = %d, want 202", resp.Status)
	}
	if side.Load() != 10 {
		t.Fatalf("side effects = %d before Dispatch returned, want 10", side.Load())
	}
}

func TestDispatchNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	r := New()
	r.GET("/users/:id", func(req *Request, resp *Response) faio.Frame {
		return func(faio.Ctx) faio.Step { return faio.StepDone }
	})

	if resp := r.Dispatch(rt, "GET", "/missing", nil); resp.Status != 404 {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
	if resp := r.Dispatch(rt, "PUT", "/users/1", nil); resp.Status != 404 {
		t.Fatalf("unregistered method: status = %d, want 404", resp.Status)
	}
}

func TestLookupMatching(t *testing.T) {
	r := New()
	r.GET("/a/:x/b/:y", func(req *Request, resp *Response) faio.Frame { return nil })
	h, params := r.lookup("GET", "/a/1/b/2")
	if h == nil {
		t.Fatal("route should match")
	}
	if params["x"] != "1" || params["y"] != "2" {
		t.Fatalf("params = %v", params)
	}
	if h, _ := r.lookup("GET", "/a/1/b"); h != nil {
		t.Fatal("length mismatch should not match")
	}
}
