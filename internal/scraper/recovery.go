package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/pkg/types"
)

// RecoveryConfig holds the retry and rotation timing knobs.
type RecoveryConfig struct {
	// InitRetryBackoff is the wait between retries of a failed initialization.
	InitRetryBackoff time.Duration

	// MaxInitRetries is the consecutive-failure ceiling that triggers
	// credential rotation.
	MaxInitRetries int

	// RotateCooldown is the wait between notifying the operator and
	// restarting with a fresh credential.
	RotateCooldown time.Duration

	// CredentialPollDelay is the wait between credential-store polls when no
	// credential exists. This path never counts against the retry ceiling.
	CredentialPollDelay time.Duration

	// ResumeDelay is the wait before restarting a run that reached its
	// active state and later ended (for example when the document engine
	// died). Keeps a crash-looping engine from relaunching hot.
	ResumeDelay time.Duration
}

// monitorRunner is the slice of Monitor the controller drives.
type monitorRunner interface {
	Run(ctx context.Context, cred *types.Session) error
}

// RunToken is the explicit ownership handle for the single active monitoring
// run. Start returns it; only the holder can Stop.
type RunToken struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller supervises the monitor loop across credential lifetimes:
// bounded retry, then credential rotation with operator notification, then
// resume. At most one run is active process-wide.
type Controller struct {
	monitor   monitorRunner
	creds     CredentialSource
	notifier  Notifier
	recipient string
	cfg       RecoveryConfig
	logger    *logrus.Logger

	mu      sync.Mutex
	active  *RunToken
	retries int
}

// NewController creates a recovery controller. recipient is the operator
// address notified when retries are exhausted.
func NewController(monitor monitorRunner, creds CredentialSource, notifier Notifier, recipient string, cfg RecoveryConfig, logger *logrus.Logger) *Controller {
	return &Controller{
		monitor:   monitor,
		creds:     creds,
		notifier:  notifier,
		recipient: recipient,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches a supervised monitoring run and returns its ownership
// token. Any previously active run is stopped and discarded first.
func (c *Controller) Start(ctx context.Context) (*RunToken, error) {
	c.mu.Lock()
	prev := c.active
	c.mu.Unlock()
	if prev != nil {
		c.logger.WithField("run", prev.ID).Info("Stopping previous monitoring run")
		if err := c.Stop(prev); err != nil && !errors.Is(err, ErrNotOwner) {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	token := &RunToken{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.active = token
	c.mu.Unlock()

	c.logger.WithField("run", token.ID).Info("Starting monitoring run")
	go c.supervise(runCtx, token)

	return token, nil
}

// ErrNotOwner is returned when Stop is called with a token that does not own
// the active run.
var ErrNotOwner = errors.New("token does not own the active run")

// Stop ends the run owned by token and blocks until it has wound down.
func (c *Controller) Stop(token *RunToken) error {
	c.mu.Lock()
	if c.active != token {
		c.mu.Unlock()
		return ErrNotOwner
	}
	c.mu.Unlock()

	token.cancel()
	<-token.done

	c.mu.Lock()
	if c.active == token {
		c.active = nil
	}
	c.mu.Unlock()

	c.logger.WithField("run", token.ID).Info("Monitoring run stopped")
	return nil
}

// RetryCount returns the current consecutive initialization-failure count.
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

func (c *Controller) setRetries(n int) {
	c.mu.Lock()
	c.retries = n
	c.mu.Unlock()
}

// supervise drives the monitor until ctx ends, rotating credentials when
// initialization keeps failing.
func (c *Controller) supervise(ctx context.Context, token *RunToken) {
	defer close(token.done)

	cred := c.acquireCredential(ctx)
	if cred == nil {
		return
	}

	for ctx.Err() == nil {
		err := c.monitor.Run(ctx, cred)
		if ctx.Err() != nil {
			return
		}

		if err != nil && errors.Is(err, ErrInitFailed) {
			c.mu.Lock()
			c.retries++
			retries := c.retries
			c.mu.Unlock()

			if retries >= c.cfg.MaxInitRetries {
				c.logger.WithField("retries", retries).Error("Retry ceiling reached, rotating credential")
				c.notifyOperator(ctx)
				if !waitFor(ctx, c.cfg.RotateCooldown) {
					return
				}
				cred = c.acquireCredential(ctx)
				if cred == nil {
					return
				}
				c.setRetries(0)
				continue
			}

			c.logger.WithFields(logrus.Fields{
				"attempt": retries,
				"max":     c.cfg.MaxInitRetries,
			}).Warn("Initialization failed, retrying with same credential")
			if !waitFor(ctx, c.cfg.InitRetryBackoff) {
				return
			}
			continue
		}

		// The run reached its active state before ending, so the credential
		// worked: reset the counter and resume with the same one
		c.setRetries(0)
		if err != nil {
			c.logger.WithError(err).Warn("Monitoring run ended, resuming")
		}
		if !waitFor(ctx, c.cfg.ResumeDelay) {
			return
		}
	}
}

// acquireCredential polls the credential store until a credential exists or
// ctx ends. The absence of any credential is logged and re-polled, never
// fatal.
func (c *Controller) acquireCredential(ctx context.Context) *types.Session {
	for ctx.Err() == nil {
		cred, err := c.creds.LeastRecentlyUsedSession(ctx)
		if err != nil {
			c.logger.WithError(err).Error("Failed to query credential store")
		} else if cred != nil {
			c.logger.WithField("session", cred.Name).Info("Acquired session credential")
			return cred
		} else {
			c.logger.Warn("No session credential available, waiting")
		}

		if !waitFor(ctx, c.cfg.CredentialPollDelay) {
			return nil
		}
	}
	return nil
}

// Status reports the operator-facing view of the supervised run.
func (c *Controller) Status() types.MonitorStatus {
	c.mu.Lock()
	status := types.MonitorStatus{
		Running:    c.active != nil,
		RetryCount: c.retries,
	}
	c.mu.Unlock()

	if m, ok := c.monitor.(*Monitor); ok {
		status.State = m.State().String()
		status.LastFingerprint = m.LastFingerprint()
		status.ScanInterval = m.cfg.ScanInterval.String()
	}
	return status
}

// notifyOperator fires the exhausted-retries notification. Best effort: a
// delivery failure is logged, never escalated.
func (c *Controller) notifyOperator(ctx context.Context) {
	if c.notifier == nil || c.recipient == "" {
		c.logger.Warn("No operator notification configured")
		return
	}
	if err := c.notifier.Notify(ctx, c.recipient, "session credential rejected after repeated initialization failures"); err != nil {
		c.logger.WithError(err).Error("Failed to notify operator")
		return
	}
	c.logger.WithField("recipient", c.recipient).Info("Operator notified")
}
