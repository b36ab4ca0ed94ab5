package scraper

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/pkg/types"
)

const (
	// EventMarker is the literal substring identifying an ad-reply
	// notification within a message's text.
	EventMarker = "replied to an ad"

	// linkLabel is the companion label rendered next to the event line.
	linkLabel = "View ad"

	// priorMessageLookback bounds the backward search for the message that
	// preceded the event line.
	priorMessageLookback = 10

	// nearbyLinkWindow bounds the search for a reference link around the
	// matched node.
	nearbyLinkWindow = 2
)

// MessageNode is a snapshot of one message-bearing element: its flattened
// text plus the hrefs of any anchors found beneath it.
type MessageNode struct {
	Text  string   `json:"text"`
	Links []string `json:"links"`
}

// ConversationHeader identifies the conversation's counterparty, read once
// per visit and used to key deduplication.
type ConversationHeader struct {
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
}

// linkPredicate decides whether an href has the shape of a reference link.
// Predicates run in priority order; the first hit wins.
type linkPredicate func(href string) bool

// isContentPermalink matches the platform-canonical content permalink shape.
func isContentPermalink(href string) bool {
	return strings.Contains(href, "/p/")
}

// isExternalLink matches any absolute outbound link.
func isExternalLink(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}

var linkPredicates = []linkPredicate{
	isContentPermalink,
	isExternalLink,
}

// permalinkText recovers a permalink pasted as plain text, for nodes that
// render the link without an anchor.
var permalinkText = regexp.MustCompile(`https://www\.instagram\.com/p/[A-Za-z0-9_-]+/?`)

// bareTimestamp matches message-pane time separators such as "9:41 PM" or
// "Today at 9:41 PM".
var bareTimestamp = regexp.MustCompile(`(?i)^(today at\s+)?\d{1,2}:\d{2}\s*(am|pm)?$`)

// relativeTime matches labels such as "5m ago" or "2h ago".
var relativeTime = regexp.MustCompile(`(?i)^\d+\s*[smhdw]\s*ago$`)

// systemChrome lists UI phrases the extractor must not mistake for messages.
var systemChrome = []string{
	"Active now",
	"Active",
	"Enter",
	"Search",
	"Clip",
	"Audio call",
	"Video call",
	"Conversation",
	"Seen",
	"Typing...",
}

// Extractor turns a conversation snapshot into structured ad-reply records.
// Extraction is heuristic and tolerant of false negatives: a record it cannot
// complete is dropped, never guessed.
type Extractor struct {
	recipient string
	logger    *logrus.Logger
}

// NewExtractor creates an extractor stamping records with the operator's own
// identity as recipient.
func NewExtractor(recipient string, logger *logrus.Logger) *Extractor {
	return &Extractor{
		recipient: recipient,
		logger:    logger,
	}
}

// Extract scans the conversation snapshot for ad-reply events and returns at
// most one record per (display name, handle) key, in order of first match.
// Later hits for the same key overwrite earlier field values when set.
func (e *Extractor) Extract(nodes []MessageNode, header ConversationHeader) []*types.Message {
	type accKey struct {
		displayName string
		handle      string
	}

	acc := make(map[accKey]*types.Message)
	var order []accKey

	for i, node := range nodes {
		if !strings.Contains(node.Text, EventMarker) {
			continue
		}

		rec := &types.Message{
			SenderUsername:    header.DisplayName,
			SenderHandle:      header.Handle,
			RecipientUsername: e.recipient,
			Content:           strings.TrimSpace(node.Text),
			PriorMessage:      findPriorMessage(nodes, i),
		}
		rec.AdData.AdLink = findReferenceLink(nodes, i)

		key := accKey{displayName: header.DisplayName, handle: header.Handle}
		if existing, ok := acc[key]; ok {
			// Last write wins, field by field, for values actually found
			existing.Content = rec.Content
			if rec.PriorMessage != "" {
				existing.PriorMessage = rec.PriorMessage
			}
			if rec.AdData.AdLink != "" {
				existing.AdData.AdLink = rec.AdData.AdLink
			}
			continue
		}

		acc[key] = rec
		order = append(order, key)
	}

	var results []*types.Message
	for _, key := range order {
		rec := acc[key]
		if rec.SenderUsername == "" || rec.PriorMessage == "" {
			e.logger.WithFields(logrus.Fields{
				"sender":        rec.SenderUsername,
				"prior_message": rec.PriorMessage != "",
			}).Debug("Dropping incomplete ad-reply record")
			continue
		}
		results = append(results, rec)
	}

	return results
}

// findPriorMessage searches backward from the matched index for the nearest
// node that reads like an actual message. The search never inspects more than
// priorMessageLookback nodes.
func findPriorMessage(nodes []MessageNode, matched int) string {
	lo := matched - priorMessageLookback
	if lo < 0 {
		lo = 0
	}
	for i := matched - 1; i >= lo; i-- {
		text := strings.TrimSpace(nodes[i].Text)
		if isMessageText(text) {
			return text
		}
	}
	return ""
}

// isMessageText reports whether text is a plausible user message rather than
// an event line, timestamp, or UI chrome.
func isMessageText(text string) bool {
	if text == "" {
		return false
	}
	if strings.Contains(text, EventMarker) || strings.Contains(text, linkLabel) {
		return false
	}
	if bareTimestamp.MatchString(text) || relativeTime.MatchString(text) {
		return false
	}
	for _, phrase := range systemChrome {
		if text == phrase {
			return false
		}
	}
	return true
}

// findReferenceLink looks for an outbound reference link, trying each link
// shape in priority order: first inside the matched node, then in a small
// window around it, finally as plain text inside the matched node.
func findReferenceLink(nodes []MessageNode, matched int) string {
	for _, pred := range linkPredicates {
		if href := matchLink(nodes[matched].Links, pred); href != "" {
			return href
		}
		for dist := 1; dist <= nearbyLinkWindow; dist++ {
			if j := matched - dist; j >= 0 {
				if href := matchLink(nodes[j].Links, pred); href != "" {
					return href
				}
			}
			if j := matched + dist; j < len(nodes) {
				if href := matchLink(nodes[j].Links, pred); href != "" {
					return href
				}
			}
		}
	}

	return permalinkText.FindString(nodes[matched].Text)
}

func matchLink(links []string, pred linkPredicate) string {
	for _, href := range links {
		if pred(href) {
			return href
		}
	}
	return ""
}
