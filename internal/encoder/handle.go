package encoder

import "sync"

// Handle tracks one supervised encoder.
type Handle struct {
	source Source
	port   uint16
	pid    int
	done   chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (h *Handle) Source() Source { return h.source }

// Port is the loopback port the encoder streams to.
func (h *Handle) Port() uint16 { return h.port }

func (h *Handle) Pid() int { return h.pid }

// Done is closed once the encoder has been torn down or has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until Done is closed.
func (h *Handle) Wait() { <-h.done }

// ExitErr reports the process exit status once Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) setExit(err error) {
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
}
