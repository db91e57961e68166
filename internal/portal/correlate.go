package portal

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Response codes carried by org.freedesktop.portal.Request.Response.
const (
	ResponseSuccess   uint32 = 0
	ResponseCancelled uint32 = 1
	ResponseOther     uint32 = 2
)

// Response is one decoded Request.Response signal.
type Response struct {
	Path    dbus.ObjectPath
	Status  uint32
	Results map[string]dbus.Variant
}

// Call issues a portal method and returns the request object path it created.
type Call func(ctx context.Context) (dbus.ObjectPath, error)

// Decoder extracts a typed payload from a successful response's results.
type Decoder[T any] func(results map[string]dbus.Variant) (T, error)

type callResult struct {
	path dbus.ObjectPath
	err  error
}

// Correlate runs call and waits on responses concurrently; neither is assumed
// to complete first. The payload is returned only when the call succeeded,
// the response arrived on the path the call returned, the response code is
// success, and decode accepts the results. The subscription behind responses
// must be in place before Correlate is invoked.
func Correlate[T any](ctx context.Context, call Call, responses <-chan Response, decode Decoder[T]) (T, error) {
	var zero T

	callDone := make(chan callResult, 1)
	go func() {
		path, err := call(ctx)
		callDone <- callResult{path: path, err: err}
	}()

	var (
		requestPath dbus.ObjectPath
		haveCall    bool
		response    Response
		haveReply   bool
	)
	for !haveCall || !haveReply {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, fmt.Errorf("%w: %w", ErrBrokerTimeout, ctx.Err())
			}
			return zero, ctx.Err()
		case res := <-callDone:
			if res.err != nil {
				return zero, fmt.Errorf("%w: %w", ErrBrokerCallFailed, res.err)
			}
			requestPath, haveCall = res.path, true
		case resp, ok := <-responses:
			if !ok {
				return zero, fmt.Errorf("%w: response subscription closed", ErrBrokerCallFailed)
			}
			if haveReply {
				continue
			}
			response, haveReply = resp, true
		}
	}

	if response.Path != requestPath {
		return zero, fmt.Errorf("%w: got %s, request was %s", ErrSpoofedReply, response.Path, requestPath)
	}
	if response.Status != ResponseSuccess {
		return zero, fmt.Errorf("%w: %s", ErrBrokerRejected, describeStatus(response.Status))
	}
	payload, err := decode(response.Results)
	if err != nil {
		if errors.Is(err, ErrMissingField) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", ErrMissingField, err)
	}
	return payload, nil
}

func describeStatus(status uint32) string {
	switch status {
	case ResponseCancelled:
		return "cancelled by user"
	case ResponseOther:
		return "ended by portal"
	default:
		return fmt.Sprintf("response code %d", status)
	}
}

// IgnoreResults is a Decoder for calls whose results carry nothing required.
func IgnoreResults(map[string]dbus.Variant) (struct{}, error) {
	return struct{}{}, nil
}
