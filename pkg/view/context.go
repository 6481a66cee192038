package view

import "context"

type requestContextKey struct{}

// RequestContext carries what the view resolved for a request back to the
// middleware around it, such as the access statistics.
type RequestContext struct {
	Target   string
	Template string
	Globals  map[string]any
}

// NewContext returns a copy of ctx carrying a fresh RequestContext.
func NewContext(ctx context.Context) (context.Context, *RequestContext) {
	rc := &RequestContext{}
	return context.WithValue(ctx, requestContextKey{}, rc), rc
}

// FromContext returns the RequestContext stored in ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
