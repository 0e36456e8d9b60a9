package ir

import (
	"context"
	"net/url"
)

// RequestKind names what a request fetches, for logging and metrics.
type RequestKind string

const (
	RequestNotificationPage   RequestKind = "notification_page"
	RequestSingleNotification RequestKind = "single_notification"
)

// Request is an outbound fetch produced by a generator.
//
// Complete is invoked exactly once by the transport with the outcome. The
// transport guarantees it runs on the owning account's serial loop and passes
// the loop's context.
type Request struct {
	Kind     RequestKind
	Method   string
	Path     string
	Query    url.Values
	Complete func(ctx context.Context, resp Response)
}

// Response is the transport outcome of a Request.
// Err is set for network failures and non-success statuses.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// OK reports whether the response carries a usable body.
func (r Response) OK() bool {
	return r.Err == nil
}

// EnqueueResult is the outcome of handing one generated request to the
// transport boundary.
type EnqueueResult struct {
	// ProducedRequest is true when the generator yielded a request.
	ProducedRequest bool
	// UnderCapacity is true when the transport can take another request.
	UnderCapacity bool
}
