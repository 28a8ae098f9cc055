// Package schedulertest provides an in-memory scheduler.Doer for tests.
package schedulertest

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/storefront-scanner/internal/scheduler"
)

// ErrUnreachable is returned for URLs with no registered route.
var ErrUnreachable = errors.New("unreachable")

// Route is a canned answer for one method and URL.
type Route struct {
	Status int
	Body   string
	Err    error
}

// Doer serves registered routes and counts calls. Unregistered URLs fail
// with ErrUnreachable, like a host that does not resolve.
type Doer struct {
	mu     sync.Mutex
	routes map[string][]Route
	calls  map[string]int
	order  []string
}

// NewDoer returns an empty Doer.
func NewDoer() *Doer {
	return &Doer{
		routes: make(map[string][]Route),
		calls:  make(map[string]int),
	}
}

// JSON registers a 200 GET response.
func (d *Doer) JSON(url, body string) *Doer {
	return d.Add(http.MethodGet, url, Route{Status: http.StatusOK, Body: body})
}

// Status registers a bodiless GET response.
func (d *Doer) Status(url string, status int) *Doer {
	return d.Add(http.MethodGet, url, Route{Status: status})
}

// Head registers a HEAD response.
func (d *Doer) Head(url string, status int) *Doer {
	return d.Add(http.MethodHead, url, Route{Status: status})
}

// Add appends a route. Repeated routes for the same key are served in
// order; the last one repeats.
func (d *Doer) Add(method, url string, r Route) *Doer {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := method + " " + url
	d.routes[key] = append(d.routes[key], r)
	return d
}

// Do implements scheduler.Doer.
func (d *Doer) Do(ctx context.Context, req scheduler.Request) (scheduler.Response, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Response{}, err
	}
	key := req.Method + " " + req.URL
	d.mu.Lock()
	n := d.calls[key]
	d.calls[key] = n + 1
	d.order = append(d.order, key)
	routes := d.routes[key]
	d.mu.Unlock()

	if len(routes) == 0 {
		return scheduler.Response{}, ErrUnreachable
	}
	r := routes[min(n, len(routes)-1)]
	if r.Err != nil {
		return scheduler.Response{}, r.Err
	}
	return scheduler.Response{StatusCode: r.Status, Body: []byte(r.Body), Header: http.Header{}}, nil
}

// Calls returns how often method and url were requested.
func (d *Doer) Calls(method, url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method+" "+url]
}

// Requests returns every request key in arrival order.
func (d *Doer) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Total returns the number of requests served.
func (d *Doer) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
