package notify

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/internal/config"
)

func TestBuildMessage(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := NewMailer(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "monitor@example.com",
	}, "https://frontend.example.com/session", logger)

	raw, err := m.buildMessage("ops@example.com", "session credential rejected")
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	msg := string(raw)
	if !strings.Contains(msg, "To: <ops@example.com>") {
		t.Error("recipient header missing")
	}
	// The subject carries a non-ASCII dash, so the header may arrive encoded;
	// plain letters survive either form
	if !strings.Contains(msg, "Subject:") || !strings.Contains(msg, "Action") {
		t.Error("subject missing")
	}
	if !strings.Contains(msg, "https://frontend.example.com/session") {
		t.Error("frontend link missing from body")
	}
	if !strings.Contains(msg, "multipart/alternative") {
		t.Error("expected a text plus HTML multipart body")
	}
}
