package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

const testRequestPath = dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_7/rdesktopd_t")

func decodeName(results map[string]dbus.Variant) (string, error) {
	v, ok := results["name"]
	if !ok {
		return "", ErrMissingField
	}
	s, _ := v.Value().(string)
	return s, nil
}

func okResults() map[string]dbus.Variant {
	return map[string]dbus.Variant{"name": dbus.MakeVariant("desk")}
}

func TestCorrelateCallBeforeResponse(t *testing.T) {
	responses := make(chan Response, 1)
	release := make(chan struct{})
	call := func(context.Context) (dbus.ObjectPath, error) {
		defer close(release)
		return testRequestPath, nil
	}
	go func() {
		<-release
		responses <- Response{Path: testRequestPath, Status: ResponseSuccess, Results: okResults()}
	}()

	got, err := Correlate(context.Background(), call, responses, decodeName)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if got != "desk" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestCorrelateResponseBeforeCall(t *testing.T) {
	responses := make(chan Response, 1)
	responses <- Response{Path: testRequestPath, Status: ResponseSuccess, Results: okResults()}
	delivered := make(chan struct{})
	go func() {
		for len(responses) > 0 {
			time.Sleep(time.Millisecond)
		}
		close(delivered)
	}()
	call := func(context.Context) (dbus.ObjectPath, error) {
		<-delivered
		return testRequestPath, nil
	}

	got, err := Correlate(context.Background(), call, responses, decodeName)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if got != "desk" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestCorrelateRejectsResponseFromOtherPath(t *testing.T) {
	for _, order := range []string{"reply-first", "call-first"} {
		t.Run(order, func(t *testing.T) {
			responses := make(chan Response, 1)
			spoofed := Response{
				Path:    "/org/freedesktop/portal/desktop/request/1_7/someone_else",
				Status:  ResponseSuccess,
				Results: okResults(),
			}
			if order == "reply-first" {
				responses <- spoofed
			}
			call := func(context.Context) (dbus.ObjectPath, error) {
				if order == "call-first" {
					defer func() { responses <- spoofed }()
				}
				return testRequestPath, nil
			}
			_, err := Correlate(context.Background(), call, responses, decodeName)
			if !errors.Is(err, ErrSpoofedReply) {
				t.Fatalf("expected ErrSpoofedReply, got %v", err)
			}
		})
	}
}

func TestCorrelateSpoofCheckPrecedesStatus(t *testing.T) {
	responses := make(chan Response, 1)
	responses <- Response{Path: "/elsewhere", Status: ResponseCancelled}
	call := func(context.Context) (dbus.ObjectPath, error) { return testRequestPath, nil }
	if _, err := Correlate(context.Background(), call, responses, decodeName); !errors.Is(err, ErrSpoofedReply) {
		t.Fatalf("expected ErrSpoofedReply, got %v", err)
	}
}

func TestCorrelateCallFailure(t *testing.T) {
	responses := make(chan Response)
	call := func(context.Context) (dbus.ObjectPath, error) {
		return "", errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	}
	if _, err := Correlate(context.Background(), call, responses, decodeName); !errors.Is(err, ErrBrokerCallFailed) {
		t.Fatalf("expected ErrBrokerCallFailed, got %v", err)
	}
}

func TestCorrelateRejectedStatus(t *testing.T) {
	for _, status := range []uint32{ResponseCancelled, ResponseOther, 9} {
		responses := make(chan Response, 1)
		responses <- Response{Path: testRequestPath, Status: status}
		call := func(context.Context) (dbus.ObjectPath, error) { return testRequestPath, nil }
		if _, err := Correlate(context.Background(), call, responses, decodeName); !errors.Is(err, ErrBrokerRejected) {
			t.Fatalf("status %d: expected ErrBrokerRejected, got %v", status, err)
		}
	}
}

func TestCorrelateDecodeFailureIsMissingField(t *testing.T) {
	responses := make(chan Response, 1)
	responses <- Response{Path: testRequestPath, Status: ResponseSuccess, Results: map[string]dbus.Variant{}}
	call := func(context.Context) (dbus.ObjectPath, error) { return testRequestPath, nil }
	failing := func(map[string]dbus.Variant) (int, error) { return 0, errors.New("bad shape") }
	if _, err := Correlate(context.Background(), call, responses, failing); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestCorrelateTimeout(t *testing.T) {
	responses := make(chan Response)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	call := func(context.Context) (dbus.ObjectPath, error) {
		<-block
		return testRequestPath, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := Correlate(ctx, call, responses, decodeName); !errors.Is(err, ErrBrokerTimeout) {
		t.Fatalf("expected ErrBrokerTimeout, got %v", err)
	}
}

func TestCorrelateCancelled(t *testing.T) {
	responses := make(chan Response)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	call := func(context.Context) (dbus.ObjectPath, error) {
		<-block
		return testRequestPath, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Correlate(ctx, call, responses, decodeName)
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrBrokerTimeout) {
		t.Fatalf("expected plain context.Canceled, got %v", err)
	}
}

func TestCorrelateClosedSubscription(t *testing.T) {
	responses := make(chan Response)
	close(responses)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	call := func(context.Context) (dbus.ObjectPath, error) {
		<-block
		return testRequestPath, nil
	}
	if _, err := Correlate(context.Background(), call, responses, decodeName); !errors.Is(err, ErrBrokerCallFailed) {
		t.Fatalf("expected ErrBrokerCallFailed, got %v", err)
	}
}
