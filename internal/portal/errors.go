package portal

import "errors"

var (
	// ErrBrokerCallFailed indicates the method call itself failed.
	ErrBrokerCallFailed = errors.New("portal call failed")
	// ErrBrokerRejected indicates a non-zero response code (user cancelled or other).
	ErrBrokerRejected = errors.New("portal rejected request")
	// ErrSpoofedReply indicates a response signal from a path other than the request's.
	ErrSpoofedReply = errors.New("portal response arrived on unexpected path")
	// ErrMissingField indicates a success response without a required result.
	ErrMissingField = errors.New("portal response missing required field")
	// ErrBrokerTimeout indicates the portal did not answer before the deadline.
	ErrBrokerTimeout = errors.New("portal response timed out")
)
