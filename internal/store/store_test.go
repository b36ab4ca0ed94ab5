package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func adReply(sender, link string) *types.Message {
	return &types.Message{
		SenderUsername:    sender,
		SenderHandle:      sender + "_handle",
		RecipientUsername: "Current User",
		Content:           sender + " replied to an ad",
		PriorMessage:      "hi there",
		AdData:            types.AdData{AdLink: link},
	}
}

func TestUpsertMessageCreate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, status, err := s.UpsertMessage(ctx, adReply("alice", "https://www.instagram.com/p/abc123/"))
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if status != types.StatusCreated {
		t.Fatalf("expected created, got %s", status)
	}
	if saved.ID == 0 {
		t.Fatal("expected assigned ID")
	}
	if saved.AdData.AdLink != "https://www.instagram.com/p/abc123/" {
		t.Fatalf("unexpected ad link: %s", saved.AdData.AdLink)
	}
}

func TestUpsertMessageSkipsNewSenderWithoutLink(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, status, err := s.UpsertMessage(ctx, adReply("bob", ""))
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if status != types.StatusSkipped {
		t.Fatalf("expected skipped, got %s", status)
	}
	if saved != nil {
		t.Fatal("skipped record must not be persisted")
	}

	msgs, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty store, got %d messages", len(msgs))
	}
}

func TestUpsertMessageMerge(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertMessage(ctx, adReply("alice", "https://www.instagram.com/p/first/")); err != nil {
		t.Fatalf("UpsertMessage create: %v", err)
	}

	// An observation without a link must not clobber the stored one
	update := adReply("alice", "")
	update.PriorMessage = "are you still selling?"
	saved, status, err := s.UpsertMessage(ctx, update)
	if err != nil {
		t.Fatalf("UpsertMessage update: %v", err)
	}
	if status != types.StatusUpdated {
		t.Fatalf("expected updated, got %s", status)
	}
	if saved.AdData.AdLink != "https://www.instagram.com/p/first/" {
		t.Fatalf("empty incoming link clobbered stored link: %s", saved.AdData.AdLink)
	}
	if saved.PriorMessage != "are you still selling?" {
		t.Fatalf("prior message not refreshed: %s", saved.PriorMessage)
	}

	// A later observation that resolved a link overwrites it
	saved, _, err = s.UpsertMessage(ctx, adReply("alice", "https://www.instagram.com/p/second/"))
	if err != nil {
		t.Fatalf("UpsertMessage relink: %v", err)
	}
	if saved.AdData.AdLink != "https://www.instagram.com/p/second/" {
		t.Fatalf("resolved link not applied: %s", saved.AdData.AdLink)
	}

	msgs, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("merge created a duplicate: %d rows", len(msgs))
	}
}

func TestUpsertMessageEmptyHandleRetained(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertMessage(ctx, adReply("alice", "https://example.com/ad")); err != nil {
		t.Fatalf("UpsertMessage create: %v", err)
	}

	update := adReply("alice", "")
	update.SenderHandle = ""
	saved, _, err := s.UpsertMessage(ctx, update)
	if err != nil {
		t.Fatalf("UpsertMessage update: %v", err)
	}
	if saved.SenderHandle != "alice_handle" {
		t.Fatalf("empty handle clobbered stored handle: %q", saved.SenderHandle)
	}
}

func TestListMessagesOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, sender := range []string{"alice", "bob", "carol"} {
		if _, _, err := s.UpsertMessage(ctx, adReply(sender, "https://example.com/"+sender)); err != nil {
			t.Fatalf("UpsertMessage %s: %v", sender, err)
		}
	}

	msgs, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].SenderUsername != "carol" || msgs[2].SenderUsername != "alice" {
		t.Fatalf("expected newest first, got %s..%s", msgs[0].SenderUsername, msgs[2].SenderUsername)
	}
}

func TestLeastRecentlyUsedSessionEmpty(t *testing.T) {
	s := testStore(t)

	sess, err := s.LeastRecentlyUsedSession(context.Background())
	if err != nil {
		t.Fatalf("LeastRecentlyUsedSession: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil on empty store, got %+v", sess)
	}
}

func TestLeastRecentlyUsedSessionRotation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.UpsertSession(ctx, "first", "token-1"); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if _, err := s.UpsertSession(ctx, "second", "token-2"); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	// Never-used credentials go first, oldest row wins
	got, err := s.LeastRecentlyUsedSession(ctx)
	if err != nil {
		t.Fatalf("LeastRecentlyUsedSession: %v", err)
	}
	if got.Name != "first" {
		t.Fatalf("expected first, got %s", got.Name)
	}
	if got.LastUsedAt == nil {
		t.Fatal("handing out a credential must mark it used")
	}

	got, err = s.LeastRecentlyUsedSession(ctx)
	if err != nil {
		t.Fatalf("LeastRecentlyUsedSession: %v", err)
	}
	if got.Name != "second" {
		t.Fatalf("expected second, got %s", got.Name)
	}

	// Both used now, rotation wraps back to the oldest use
	got, err = s.LeastRecentlyUsedSession(ctx)
	if err != nil {
		t.Fatalf("LeastRecentlyUsedSession: %v", err)
	}
	if got.Name != "first" {
		t.Fatalf("expected rotation back to first, got %s", got.Name)
	}
	if got.Token != "token-1" {
		t.Fatalf("unexpected token: %s", got.Token)
	}
}

func TestUpsertSessionReplacesToken(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.UpsertSession(ctx, "main", "old-token"); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	sess, err := s.UpsertSession(ctx, "main", "new-token")
	if err != nil {
		t.Fatalf("UpsertSession replace: %v", err)
	}
	if sess.Token != "new-token" {
		t.Fatalf("token not replaced: %s", sess.Token)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("upsert created a duplicate: %d rows", len(sessions))
	}
}

func TestListSessionsOmitsTokens(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.UpsertSession(ctx, "main", "secret"); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Token != "" {
		t.Fatal("listing must not expose tokens")
	}
}
