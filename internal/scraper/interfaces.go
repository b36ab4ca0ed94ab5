// Package scraper implements the monitoring core: inbox change detection,
// conversation scanning, ad-reply extraction, and credential recovery.
package scraper

import (
	"context"
	"errors"

	"github.com/gofix/dm-monitor/pkg/types"
)

// DocumentQuery is the capability the core uses to read and drive the live
// document. The concrete transport (browser engine, devtools protocol) is
// opaque to this package.
type DocumentQuery interface {
	// Navigate loads the given URL and waits for the document to settle.
	Navigate(ctx context.Context, url string) error

	// SetCredentialCookie injects an authentication cookie scoped to domain.
	SetCredentialCookie(ctx context.Context, name, value, domain string) error

	// Evaluate runs the given script against the live document and decodes
	// its JSON result into out. A nil out discards the result.
	Evaluate(ctx context.Context, js string, out interface{}) error

	// IsUsable reports whether the underlying document engine still responds.
	IsUsable() bool

	// Close releases the document engine.
	Close() error
}

// ProviderFactory acquires a fresh document provider for one monitoring run.
type ProviderFactory func(ctx context.Context) (DocumentQuery, error)

// RecordSink receives extracted records, one at a time.
type RecordSink interface {
	Save(ctx context.Context, msg *types.Message) (*types.SaveResult, error)
}

// CredentialSource supplies rotating session credentials.
// LeastRecentlyUsedSession returns nil when no credential is available.
type CredentialSource interface {
	LeastRecentlyUsedSession(ctx context.Context) (*types.Session, error)
}

// Notifier delivers an operator notification. Best-effort: callers log
// failures and move on.
type Notifier interface {
	Notify(ctx context.Context, recipient, reason string) error
}

// Control-flow classification for the recovery controller.
var (
	// ErrInitFailed marks a failure before the loop reached its active state.
	ErrInitFailed = errors.New("monitor initialization failed")

	// ErrProviderGone marks a provider that stopped responding mid-run.
	ErrProviderGone = errors.New("document provider no longer usable")

	// ErrAlreadyRunning is returned when a start request races an active loop.
	ErrAlreadyRunning = errors.New("monitor loop already running")
)
