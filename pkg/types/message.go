package types

import "time"

// AdData carries the ad reference extracted alongside a reply event.
// An empty AdLink means no link could be resolved for this observation.
type AdData struct {
	AdLink string `json:"adLink,omitempty"`
}

// Message represents one persisted ad-reply record.
type Message struct {
	ID                int64     `json:"id"`
	SenderUsername    string    `json:"senderUsername"`
	SenderHandle      string    `json:"senderHandle,omitempty"`
	RecipientUsername string    `json:"recipientUsername"`
	Content           string    `json:"content"`
	PriorMessage      string    `json:"priorMessage,omitempty"`
	AdData            AdData    `json:"adData"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasAdLink reports whether a reference link was resolved for this record.
func (m *Message) HasAdLink() bool {
	return m.AdData.AdLink != ""
}

// SaveStatus is the outcome of pushing a record through the persistence gateway.
type SaveStatus string

const (
	StatusCreated SaveStatus = "created"
	StatusUpdated SaveStatus = "updated"
	StatusSkipped SaveStatus = "skipped"
)

// SaveResult is returned by the persistence gateway for a single record.
type SaveResult struct {
	Status  SaveStatus `json:"status"`
	Message *Message   `json:"message,omitempty"`
}

// Session is a stored authentication credential for the monitored service.
// The monitoring run borrows the token; only the store mutates the row.
type Session struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Token      string     `json:"token,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// MonitorStatus is the operator-facing snapshot of the monitoring run.
type MonitorStatus struct {
	Running         bool   `json:"running"`
	State           string `json:"state"`
	RetryCount      int    `json:"retryCount"`
	LastFingerprint string `json:"lastFingerprint"`
	ScanInterval    string `json:"scanInterval"`
}
