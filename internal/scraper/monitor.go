package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/pkg/types"
)

// State is the monitor loop's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MonitorConfig holds the polling-loop tuning knobs.
type MonitorConfig struct {
	// TargetURL is the inbox the loop watches.
	TargetURL string

	// ConversationMarker is the URL fragment confirming a conversation opened.
	ConversationMarker string

	// CookieName and CookieDomain scope the injected session credential.
	CookieName   string
	CookieDomain string

	// RecipientUsername stamps extracted records with the operator identity.
	RecipientUsername string

	ScanInterval    time.Duration
	SettleDelay     time.Duration
	ErrorCooldown   time.Duration
	SelectorTimeout time.Duration
	ScrollSteps     int
	ScrollStepDelay time.Duration
}

// Monitor is the top-level polling loop. It owns the timing, the open →
// extract → return sequence, and per-iteration error isolation. Exactly one
// conversation is ever open at a time; iterations never overlap.
type Monitor struct {
	newProvider ProviderFactory
	sink        RecordSink
	cfg         MonitorConfig
	logger      *logrus.Logger

	state atomic.Int32

	mu              sync.Mutex
	lastFingerprint string
}

// NewMonitor creates a monitor loop. The provider factory is invoked once per
// run; the resulting provider is owned exclusively by that run.
func NewMonitor(factory ProviderFactory, sink RecordSink, cfg MonitorConfig, logger *logrus.Logger) *Monitor {
	return &Monitor{
		newProvider: factory,
		sink:        sink,
		cfg:         cfg,
		logger:      logger,
	}
}

// State returns the loop's current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// LastFingerprint returns the most recently observed inbox fingerprint.
func (m *Monitor) LastFingerprint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFingerprint
}

func (m *Monitor) setLastFingerprint(fp string) {
	m.mu.Lock()
	m.lastFingerprint = fp
	m.mu.Unlock()
}

// Run executes one monitoring run with the given credential and blocks until
// the run ends. Initialization failures return an error wrapping
// ErrInitFailed; a provider dying mid-run returns ErrProviderGone; a context
// cancellation returns nil after an orderly stop.
func (m *Monitor) Run(ctx context.Context, cred *types.Session) error {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) &&
		!m.state.CompareAndSwap(int32(StateStopped), int32(StateInitializing)) {
		return ErrAlreadyRunning
	}

	doc, err := m.initialize(ctx, cred)
	if err != nil {
		m.state.Store(int32(StateIdle))
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			m.logger.WithError(cerr).Warn("Failed to close document provider")
		}
	}()

	m.state.Store(int32(StateActive))
	m.logger.WithField("session", cred.Name).Info("Monitor loop active")

	walker := NewWalker(doc, m.sink, NewExtractor(m.cfg.RecipientUsername, m.logger), WalkerConfig{
		InboxURL:           m.cfg.TargetURL,
		ConversationMarker: m.cfg.ConversationMarker,
		OpenTimeout:        m.cfg.SelectorTimeout,
		ScrollSteps:        m.cfg.ScrollSteps,
		ScrollStepDelay:    m.cfg.ScrollStepDelay,
	}, m.logger)

	defer m.state.Store(int32(StateStopped))

	for {
		// Stop signal is honored here, at the top of each iteration
		if ctx.Err() != nil {
			m.logger.Info("Monitor loop stopping")
			return nil
		}

		if !doc.IsUsable() {
			m.logger.Error("Document provider is gone, stopping run")
			return ErrProviderGone
		}

		if err := m.iterate(ctx, doc, walker); err != nil {
			// One bad iteration never ends the loop; cool down and go again
			m.logger.WithError(err).Error("Monitoring iteration failed")
			if !waitFor(ctx, m.cfg.ErrorCooldown) {
				return nil
			}
			continue
		}

		if !waitFor(ctx, m.cfg.ScanInterval) {
			return nil
		}
	}
}

// initialize acquires the document provider, applies the session credential,
// and navigates to the inbox.
func (m *Monitor) initialize(ctx context.Context, cred *types.Session) (DocumentQuery, error) {
	m.logger.WithField("session", cred.Name).Info("Initializing monitor run")

	doc, err := m.newProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire document provider: %w", err)
	}

	if err := doc.SetCredentialCookie(ctx, m.cfg.CookieName, cred.Token, m.cfg.CookieDomain); err != nil {
		doc.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to inject session cookie: %w", err)
	}

	if err := doc.Navigate(ctx, m.cfg.TargetURL); err != nil {
		doc.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to navigate to inbox: %w", err)
	}

	// Confirm we actually landed on the inbox and not a login redirect
	location, err := currentLocation(ctx, doc)
	if err != nil {
		doc.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to read location: %w", err)
	}
	if !strings.Contains(location, "/direct") {
		doc.Close() //nolint:errcheck
		return nil, fmt.Errorf("inbox navigation landed on %s", location)
	}

	return doc, nil
}

// iterate runs one poll: snapshot the inbox, detect change, and visit the
// conversation when something new arrived.
func (m *Monitor) iterate(ctx context.Context, doc DocumentQuery, walker *Walker) error {
	snapshot, err := snapshotInbox(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to snapshot inbox: %w", err)
	}

	result := DetectChange(snapshot, m.LastFingerprint())
	if !result.Changed {
		return nil
	}

	bootstrap := m.LastFingerprint() == ""
	m.setLastFingerprint(result.Fingerprint)

	if bootstrap {
		// First observation establishes the baseline; the entry it sees is
		// not known to be new, but scanning it once costs little and catches
		// anything that arrived while the monitor was down.
		m.logger.WithField("sender", result.Entry.Sender).Info("Recorded initial inbox state")
	} else {
		m.logger.WithFields(logrus.Fields{
			"sender":  result.Entry.Sender,
			"preview": result.Entry.Preview,
		}).Info("Inbox change detected")
	}

	walker.Visit(ctx)

	// Let the inbox settle after the return navigation
	waitFor(ctx, m.cfg.SettleDelay)
	return nil
}
