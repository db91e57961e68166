package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"rdesktopd/internal/handle"
	"rdesktopd/internal/logging"
)

// Stream is one source record from a Start response. ID and size are
// optional in the portal protocol; HasID and HasSize report their presence.
type Stream struct {
	NodeID     uint32
	ID         string
	HasID      bool
	Width      int32
	Height     int32
	HasSize    bool
	SourceType uint32
}

// StartResult is the decoded Start response.
type StartResult struct {
	Streams      []Stream
	RestoreToken string
}

// Client issues ScreenCast requests through a Bus.
type Client struct {
	bus     Bus
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request round. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a ScreenCast client.
func NewClient(bus Bus, opts ...Option) *Client {
	c := &Client{bus: bus, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession creates a ScreenCast session and returns its object path.
func (c *Client) CreateSession(ctx context.Context) (dbus.ObjectPath, error) {
	token := handle.New()
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(token.String()),
		"session_handle_token": dbus.MakeVariant(handle.New().String()),
	}
	return request(ctx, c, "CreateSession", token, decodeSessionHandle, options)
}

// SelectSources configures which sources the session captures.
func (c *Client) SelectSources(ctx context.Context, session dbus.ObjectPath, opts SelectOptions) error {
	token := handle.New()
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token.String()),
		"types":        dbus.MakeVariant(uint32(opts.Types)),
		"multiple":     dbus.MakeVariant(opts.Multiple),
		"cursor_mode":  dbus.MakeVariant(uint32(opts.Cursor)),
		"persist_mode": dbus.MakeVariant(uint32(opts.Persist)),
	}
	if opts.RestoreToken != "" {
		options["restore_token"] = dbus.MakeVariant(opts.RestoreToken)
	}
	_, err := request(ctx, c, "SelectSources", token, IgnoreResults, session, options)
	return err
}

// Start starts the cast and returns the negotiated streams.
func (c *Client) Start(ctx context.Context, session dbus.ObjectPath, parentWindow string) (StartResult, error) {
	token := handle.New()
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token.String()),
	}
	return request(ctx, c, "Start", token, decodeStartResult, session, parentWindow, options)
}

// CloseSession closes a session. It does not wait for a Response signal.
func (c *Client) CloseSession(ctx context.Context, session dbus.ObjectPath) error {
	if session == "" {
		return nil
	}
	return c.bus.CloseSession(ctx, session)
}

func request[T any](ctx context.Context, c *Client, method string, token handle.Handle, decode Decoder[T], args ...any) (T, error) {
	var zero T
	if token.IsZero() || !handle.Valid(token.String()) {
		return zero, fmt.Errorf("%w: %s: unusable handle token %q", ErrBrokerCallFailed, method, token.String())
	}
	sender := c.bus.UniqueName()
	if sender == "" {
		return zero, fmt.Errorf("%w: %s: connection has no unique name", ErrBrokerCallFailed, method)
	}
	path := RequestPath(sender, token)

	responses, cancel, err := c.bus.Subscribe(path)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", ErrBrokerCallFailed, method, err)
	}
	defer cancel()

	if c.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, c.timeout)
		defer stop()
	}

	c.logger.Debug("portal request",
		logging.String("method", method),
		logging.String(logging.FieldRequestPath, string(path)),
	)
	call := func(ctx context.Context) (dbus.ObjectPath, error) {
		return c.bus.CallScreenCast(ctx, method, args...)
	}
	result, err := Correlate(ctx, call, responses, decode)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

func decodeSessionHandle(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", fmt.Errorf("%w: session_handle", ErrMissingField)
	}
	var path dbus.ObjectPath
	switch value := v.Value().(type) {
	case string:
		path = dbus.ObjectPath(value)
	case dbus.ObjectPath:
		path = value
	default:
		return "", fmt.Errorf("%w: session_handle has type %s", ErrMissingField, v.Signature())
	}
	if !path.IsValid() {
		return "", fmt.Errorf("%w: session_handle %q is not an object path", ErrMissingField, string(path))
	}
	return path, nil
}

func decodeStartResult(results map[string]dbus.Variant) (StartResult, error) {
	v, ok := results["streams"]
	if !ok {
		return StartResult{}, fmt.Errorf("%w: streams", ErrMissingField)
	}
	streams, err := parseStreams(v.Value())
	if err != nil {
		return StartResult{}, err
	}
	out := StartResult{Streams: streams}
	if tok, ok := results["restore_token"]; ok {
		if s, ok := tok.Value().(string); ok {
			out.RestoreToken = s
		}
	}
	return out, nil
}

var errMalformedStream = errors.New("malformed stream record")

// parseStreams accepts the a(ua{sv}) value in the shapes godbus produces.
func parseStreams(value any) ([]Stream, error) {
	var records [][]any
	switch list := value.(type) {
	case [][]any:
		records = list
	case []any:
		for _, item := range list {
			rec, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %w: element is %T", ErrMissingField, errMalformedStream, item)
			}
			records = append(records, rec)
		}
	default:
		return nil, fmt.Errorf("%w: streams has type %T", ErrMissingField, value)
	}

	streams := make([]Stream, 0, len(records))
	for i, rec := range records {
		if len(rec) != 2 {
			return nil, fmt.Errorf("%w: %w: record %d has %d fields", ErrMissingField, errMalformedStream, i, len(rec))
		}
		node, ok := rec[0].(uint32)
		if !ok {
			return nil, fmt.Errorf("%w: %w: record %d node is %T", ErrMissingField, errMalformedStream, i, rec[0])
		}
		props, ok := rec[1].(map[string]dbus.Variant)
		if !ok {
			return nil, fmt.Errorf("%w: %w: record %d properties are %T", ErrMissingField, errMalformedStream, i, rec[1])
		}
		streams = append(streams, streamFromProperties(node, props))
	}
	return streams, nil
}

func streamFromProperties(node uint32, props map[string]dbus.Variant) Stream {
	s := Stream{NodeID: node}
	if v, ok := props["id"]; ok {
		if id, ok := v.Value().(string); ok {
			s.ID, s.HasID = id, true
		}
	}
	if v, ok := props["size"]; ok {
		s.Width, s.Height, s.HasSize = pairInt32(v.Value())
	}
	if v, ok := props["source_type"]; ok {
		if t, ok := v.Value().(uint32); ok {
			s.SourceType = t
		}
	}
	return s
}

func pairInt32(value any) (int32, int32, bool) {
	switch pair := value.(type) {
	case []any:
		if len(pair) != 2 {
			return 0, 0, false
		}
		a, okA := pair[0].(int32)
		b, okB := pair[1].(int32)
		return a, b, okA && okB
	case []int32:
		if len(pair) != 2 {
			return 0, 0, false
		}
		return pair[0], pair[1], true
	case [2]int32:
		return pair[0], pair[1], true
	default:
		return 0, 0, false
	}
}
