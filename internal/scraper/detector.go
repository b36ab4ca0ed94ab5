package scraper

import "fmt"

// InboxEntry is a lightweight summary of one conversation in the inbox list.
type InboxEntry struct {
	Sender    string `json:"sender"`
	Preview   string `json:"preview"`
	TimeLabel string `json:"timeLabel"`
}

// Fingerprint derives the content fingerprint used for change detection.
func (e InboxEntry) Fingerprint() string {
	return fmt.Sprintf("%s: %s (%s)", e.Sender, e.Preview, e.TimeLabel)
}

// ChangeResult is the outcome of comparing the inbox head against the last
// observed fingerprint.
type ChangeResult struct {
	Changed     bool
	Entry       InboxEntry
	Fingerprint string
}

// DetectChange compares the most recent inbox entry against lastSeen.
//
// Only the head entry is inspected: the inbox is sorted by recency, so a
// changed head is the cheapest reliable signal that something new arrived.
// An empty lastSeen bootstraps state, reporting Changed so the caller records
// the initial fingerprint. Two arrivals within one poll interval surface only
// the latest; that coverage gap is an accepted property of head-only
// detection, not something this function tries to repair.
func DetectChange(snapshot []InboxEntry, lastSeen string) ChangeResult {
	if len(snapshot) == 0 {
		return ChangeResult{}
	}

	head := snapshot[0]
	if head.Sender == "" && head.Preview == "" {
		// Nothing actionable in the head slot
		return ChangeResult{}
	}

	fp := head.Fingerprint()
	if lastSeen != "" && fp == lastSeen {
		return ChangeResult{}
	}

	return ChangeResult{Changed: true, Entry: head, Fingerprint: fp}
}
