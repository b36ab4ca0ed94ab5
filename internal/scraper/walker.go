package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/pkg/types"
)

// WalkerConfig holds the conversation-visit tuning knobs.
type WalkerConfig struct {
	// InboxURL is where the walker returns after a visit.
	InboxURL string

	// ConversationMarker is the URL fragment confirming a conversation is open.
	ConversationMarker string

	// OpenTimeout bounds the wait for the conversation to render after the
	// head entry is clicked.
	OpenTimeout time.Duration

	// ScrollSteps and ScrollStepDelay drive the best-effort history expansion.
	ScrollSteps     int
	ScrollStepDelay time.Duration
}

// Walker opens the most recent conversation, expands its history, runs
// extraction, and routes the results to persistence. Every step is fail-soft:
// errors are logged and end the visit early, they never propagate.
type Walker struct {
	doc       DocumentQuery
	sink      RecordSink
	extractor *Extractor
	cfg       WalkerConfig
	logger    *logrus.Logger
}

// NewWalker creates a conversation walker bound to one document provider.
func NewWalker(doc DocumentQuery, sink RecordSink, extractor *Extractor, cfg WalkerConfig, logger *logrus.Logger) *Walker {
	return &Walker{
		doc:       doc,
		sink:      sink,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Visit opens the most recent inbox conversation, scans it, saves what it
// finds, and returns to the inbox. It returns the extracted records; an
// aborted visit returns nil.
func (w *Walker) Visit(ctx context.Context) []*types.Message {
	defer w.returnToInbox(ctx)

	clicked, err := openHeadConversation(ctx, w.doc)
	if err != nil || !clicked {
		w.logger.WithError(err).Warn("Failed to open conversation")
		return nil
	}

	if !w.awaitConversation(ctx) {
		return nil
	}

	w.scrollHistory(ctx)

	nodes, header, err := snapshotConversation(ctx, w.doc)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to snapshot conversation")
		return nil
	}

	records := w.extractor.Extract(nodes, header)
	if len(records) == 0 {
		w.logger.WithField("counterparty", header.DisplayName).Debug("No ad-reply records in conversation")
		return nil
	}

	w.logger.WithFields(logrus.Fields{
		"counterparty": header.DisplayName,
		"count":        len(records),
	}).Info("Extracted ad-reply records")

	for _, rec := range records {
		result, err := w.sink.Save(ctx, rec)
		if err != nil {
			// One record failing to save must not block the others
			w.logger.WithError(err).WithField("sender", rec.SenderUsername).Warn("Failed to save record")
			continue
		}
		w.logger.WithFields(logrus.Fields{
			"sender": rec.SenderUsername,
			"status": result.Status,
		}).Info("Saved ad-reply record")
	}

	return records
}

// awaitConversation polls the document location until it carries the
// conversation marker or OpenTimeout elapses.
func (w *Walker) awaitConversation(ctx context.Context) bool {
	deadline := time.Now().Add(w.cfg.OpenTimeout)
	var location string
	for {
		var err error
		location, err = currentLocation(ctx, w.doc)
		if err == nil && strings.Contains(location, w.cfg.ConversationMarker) {
			return true
		}
		if time.Now().After(deadline) {
			w.logger.WithError(err).WithField("location", location).Warn("Conversation did not open")
			return false
		}
		if !waitFor(ctx, w.cfg.ScrollStepDelay) {
			return false
		}
	}
}

// scrollHistory nudges the message pane a fixed number of steps to load
// older messages. Best effort: it does not guarantee full-history coverage.
func (w *Walker) scrollHistory(ctx context.Context) {
	for i := 0; i < w.cfg.ScrollSteps; i++ {
		if err := stepScroll(ctx, w.doc); err != nil {
			w.logger.WithError(err).Debug("Scroll step failed")
			return
		}
		if !waitFor(ctx, w.cfg.ScrollStepDelay) {
			return
		}
	}
}

// returnToInbox tries the structural back affordances first and falls back
// to navigating the inbox URL directly.
func (w *Walker) returnToInbox(ctx context.Context) {
	clicked, err := clickBackAffordance(ctx, w.doc)
	if err == nil && clicked {
		return
	}

	if err := w.doc.Navigate(ctx, w.cfg.InboxURL); err != nil {
		w.logger.WithError(err).Warn("Failed to return to inbox")
	}
}

// waitFor sleeps for d unless ctx ends first. It reports whether the full
// wait elapsed.
func waitFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
