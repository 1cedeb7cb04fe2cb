package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Router picks a Fetcher by location scheme. Locations without a scheme use the "" entry.
type Router struct {
	routes map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Fetcher)}
}

// NewDefault routes http(s) to an HTTPFetcher and everything else to the local filesystem.
func NewDefault(timeout time.Duration) *Router {
	return NewRouter().
		Handle(NewHTTPFetcher(timeout), "http", "https").
		Handle(FileFetcher{}, "", "file")
}

// Handle registers f for each scheme.
func (r *Router) Handle(f Fetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.routes[strings.ToLower(s)] = f
	}
	return r
}

func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	f, ok := r.routes[scheme(location)]
	if !ok {
		return nil, fmt.Errorf("fetch: no fetcher for %q", location)
	}
	return f.Fetch(ctx, location)
}

func scheme(location string) string {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) < 2 { // "C:\..." parses as scheme "c"
		return ""
	}
	return strings.ToLower(u.Scheme)
}
