package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"rdesktopd/internal/encoder"
	"rdesktopd/internal/history"
	"rdesktopd/internal/logging"
	"rdesktopd/internal/portal"
)

// ErrAlreadyStarted reports a BeginCapture call while a session exists.
var ErrAlreadyStarted = errors.New("capture session already started")

const closeSessionTimeout = 5 * time.Second

// ScreenCast is the portal surface the manager drives.
type ScreenCast interface {
	CreateSession(ctx context.Context) (dbus.ObjectPath, error)
	SelectSources(ctx context.Context, session dbus.ObjectPath, opts portal.SelectOptions) error
	Start(ctx context.Context, session dbus.ObjectPath, parentWindow string) (portal.StartResult, error)
	CloseSession(ctx context.Context, session dbus.ObjectPath) error
}

// Launcher starts one encoder per Desktop.
type Launcher interface {
	Launch(ctx context.Context, src encoder.Source) (*encoder.Handle, error)
}

// Journal records negotiation outcomes.
type Journal interface {
	Record(ctx context.Context, entry history.Entry) (int64, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenStore sets where the restore token is kept.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) { m.tokens = store }
}

// WithJournal records each negotiation.
func WithJournal(journal Journal) Option {
	return func(m *Manager) { m.journal = journal }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPersistMode sets how long the portal should remember consent.
func WithPersistMode(mode portal.PersistMode) Option {
	return func(m *Manager) { m.persist = mode }
}

// WithParentWindow sets the parent window identifier passed to Start.
func WithParentWindow(label string) Option {
	return func(m *Manager) { m.parentWindow = label }
}

// WithRunID tags journal entries with the daemon run.
func WithRunID(runID string) Option {
	return func(m *Manager) { m.runID = runID }
}

// Manager drives one portal capture session.
type Manager struct {
	cast         ScreenCast
	launcher     Launcher
	tokens       TokenStore
	journal      Journal
	logger       *slog.Logger
	persist      portal.PersistMode
	parentWindow string
	runID        string

	mu           sync.Mutex
	state        State
	session      dbus.ObjectPath
	desktops     []Desktop
	handles      []*encoder.Handle
	stopEncoders context.CancelFunc

	// negotiating is closed when the in-flight BeginCapture returns.
	negotiating       chan struct{}
	cancelNegotiation context.CancelFunc
}

// NewManager constructs an idle Manager.
func NewManager(cast ScreenCast, launcher Launcher, opts ...Option) *Manager {
	m := &Manager{
		cast:         cast,
		launcher:     launcher,
		logger:       logging.NewNop(),
		persist:      portal.PersistUntilRevoked,
		parentWindow: "RDESKTOPD",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Desktops returns a copy of the Desktops from the last successful negotiation.
func (m *Manager) Desktops() []Desktop {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Desktop(nil), m.desktops...)
}

// BeginCapture negotiates a capture session and launches encoders. Encoders
// run until ctx is cancelled or Close is called.
func (m *Manager) BeginCapture(ctx context.Context) ([]Desktop, error) {
	m.mu.Lock()
	if m.state != StateIdle || m.negotiating != nil {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.state = StateSessionCreated
	negCtx, cancelNeg := context.WithCancel(ctx)
	done := make(chan struct{})
	m.negotiating = done
	m.cancelNegotiation = cancelNeg
	m.mu.Unlock()
	defer func() {
		cancelNeg()
		m.mu.Lock()
		m.negotiating = nil
		m.cancelNegotiation = nil
		m.mu.Unlock()
		close(done)
	}()

	started := time.Now()
	token := m.loadToken()
	m.logger.Info("capture negotiation started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.Bool("token_reused", token != ""),
		logging.String("persist_mode", m.persist.String()),
	)

	desktops, err := m.negotiate(ctx, negCtx, token)
	m.journalOutcome(ctx, started, token != "", desktops, err)
	if err != nil {
		return nil, err
	}
	return append([]Desktop(nil), desktops...), nil
}

// negotiate drives the portal on negCtx. Encoders outlive the negotiation and
// run on a child of ctx.
func (m *Manager) negotiate(ctx, negCtx context.Context, token string) ([]Desktop, error) {
	session, err := m.cast.CreateSession(negCtx)
	if err != nil {
		m.reset()
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	logger := m.logger.With(logging.String(logging.FieldSessionHandle, string(session)))
	logger.Debug("portal session created")
	if err := negCtx.Err(); err != nil {
		m.abort(ctx, session, logger)
		return nil, fmt.Errorf("create session: %w", err)
	}

	opts := portal.SelectOptions{
		Types:        portal.SourceMonitor,
		Multiple:     true,
		Cursor:       portal.CursorEmbedded,
		RestoreToken: token,
		Persist:      m.persist,
	}
	if err := m.cast.SelectSources(negCtx, session, opts); err != nil {
		m.abort(ctx, session, logger)
		return nil, fmt.Errorf("select sources: %w", err)
	}
	if err := negCtx.Err(); err != nil {
		m.abort(ctx, session, logger)
		return nil, fmt.Errorf("select sources: %w", err)
	}
	m.setState(StateSourcesSelected)

	result, err := m.cast.Start(negCtx, session, m.parentWindow)
	if err != nil {
		m.abort(ctx, session, logger)
		return nil, fmt.Errorf("start cast: %w", err)
	}
	m.setState(StateStreaming)

	m.saveToken(result.RestoreToken, logger)

	candidates := FilterStreams(result.Streams, logger)
	encCtx, stop := context.WithCancel(ctx)
	desktops, handles := m.launchEncoders(encCtx, candidates, logger)

	m.mu.Lock()
	m.desktops = desktops
	m.handles = handles
	m.stopEncoders = stop
	m.mu.Unlock()

	logger.Info("capture streaming",
		logging.String(logging.FieldEventType, "capture_streaming"),
		logging.Int("streams", len(result.Streams)),
		logging.Int("desktops", len(desktops)),
	)
	return desktops, nil
}

func (m *Manager) launchEncoders(ctx context.Context, candidates []Desktop, logger *slog.Logger) ([]Desktop, []*encoder.Handle) {
	desktops := make([]Desktop, 0, len(candidates))
	handles := make([]*encoder.Handle, 0, len(candidates))
	for _, desktop := range candidates {
		h, err := m.launcher.Launch(ctx, encoder.Source{
			NodeID: desktop.NodeID,
			Width:  desktop.Width,
			Height: desktop.Height,
		})
		if err != nil {
			logging.WarnWithContext(logger, "encoder launch failed", "encoder_launch_failed",
				logging.Error(err),
				logging.Uint64(logging.FieldDesktopIndex, desktop.Index),
				logging.Uint64(logging.FieldNodeID, uint64(desktop.NodeID)),
				logging.String(logging.FieldErrorHint, "verify encoder.binary and encoder.args"),
				logging.String(logging.FieldImpact, "desktop dropped from this session"),
			)
			continue
		}
		desktop.Index = uint64(len(desktops))
		desktop.Port = h.Port()
		desktops = append(desktops, desktop)
		handles = append(handles, h)
	}
	return desktops, handles
}

// Close stops encoders, closes the portal session, and returns to Idle.
// An in-flight negotiation is cancelled and awaited first; if ctx ends before
// it settles, Close returns ctx's error and leaves the manager untouched.
// Closing an idle manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	for m.negotiating != nil {
		done := m.negotiating
		m.cancelNegotiation()
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for negotiation: %w", ctx.Err())
		}
		m.mu.Lock()
	}
	session := m.session
	stop := m.stopEncoders
	handles := m.handles
	idle := m.state == StateIdle
	m.mu.Unlock()
	if idle {
		return nil
	}

	if stop != nil {
		stop()
		for _, h := range handles {
			select {
			case <-h.Done():
			case <-ctx.Done():
			}
		}
	}

	var err error
	if session != "" {
		if closeErr := m.cast.CloseSession(ctx, session); closeErr != nil {
			err = fmt.Errorf("close session: %w", closeErr)
		}
	}
	m.reset()
	return err
}

func (m *Manager) abort(ctx context.Context, session dbus.ObjectPath, logger *slog.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeSessionTimeout)
	defer cancel()
	if err := m.cast.CloseSession(closeCtx, session); err != nil {
		logging.WarnWithContext(logger, "failed to close portal session", "session_close_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the portal will drop the session when the daemon exits"),
			logging.String(logging.FieldImpact, "stale portal session until daemon restart"),
		)
	}
	m.reset()
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopEncoders != nil {
		m.stopEncoders()
	}
	m.state = StateIdle
	m.session = ""
	m.desktops = nil
	m.handles = nil
	m.stopEncoders = nil
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Manager) loadToken() string {
	if m.tokens == nil {
		return ""
	}
	token, err := m.tokens.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Info("no restore token stored; portal will ask for consent")
			return ""
		}
		logging.WarnWithContext(m.logger, "failed to read restore token", "restore_token_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the restore token file"),
			logging.String(logging.FieldImpact, "portal will ask for consent again"),
		)
		return ""
	}
	return token
}

func (m *Manager) saveToken(token string, logger *slog.Logger) {
	if token == "" {
		logging.WarnWithContext(logger, "portal returned no restore token", "restore_token_missing",
			logging.String(logging.FieldErrorHint, "set capture.persist_mode to application or until_revoked"),
			logging.String(logging.FieldImpact, "next negotiation will ask for consent"),
		)
		return
	}
	if m.tokens == nil {
		return
	}
	if err := m.tokens.Save(token); err != nil {
		logging.WarnWithContext(logger, "failed to persist restore token", "restore_token_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
			logging.String(logging.FieldImpact, "next negotiation will ask for consent"),
		)
	}
}

func (m *Manager) journalOutcome(ctx context.Context, started time.Time, reused bool, desktops []Desktop, err error) {
	if m.journal == nil {
		return
	}
	entry := history.Entry{
		RunID:       m.runID,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Outcome:     history.OutcomeStreaming,
		Desktops:    len(desktops),
		TokenReused: reused,
	}
	if err != nil {
		entry.Outcome = history.OutcomeFailed
		if errors.Is(err, context.Canceled) {
			entry.Outcome = history.OutcomeCancelled
		}
		entry.Error = err.Error()
	}
	if _, recErr := m.journal.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		logging.WarnWithContext(m.logger, "failed to journal negotiation", "history_write_failed",
			logging.Error(recErr),
			logging.String(logging.FieldImpact, "history command will not show this negotiation"),
		)
	}
}
