package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/internal/config"
	"github.com/gofix/dm-monitor/internal/store"
	"github.com/gofix/dm-monitor/pkg/types"
)

type staticStatus struct {
	status types.MonitorStatus
}

func (s staticStatus) Status() types.MonitorStatus { return s.status }

func testServer(t *testing.T, status StatusReporter) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{ListenAddr: "127.0.0.1:0"}
	srv := NewServer(cfg, st, status, logger)

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const validMessage = `{
	"senderUsername": "Alice",
	"senderHandle": "alice_h",
	"recipientUsername": "Current User",
	"content": "Alice replied to an ad",
	"priorMessage": "hi there",
	"adData": {"adLink": "https://www.instagram.com/p/abc123/"}
}`

func TestMessageEndpointCreate(t *testing.T) {
	ts := testServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/message", validMessage)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var result types.SaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != types.StatusCreated {
		t.Fatalf("expected created, got %s", result.Status)
	}
	if result.Message == nil || result.Message.ID == 0 {
		t.Fatal("expected persisted message with ID")
	}
}

func TestMessageEndpointUpdate(t *testing.T) {
	ts := testServer(t, nil)

	postJSON(t, ts.URL+"/api/message", validMessage)
	resp := postJSON(t, ts.URL+"/api/message", validMessage)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", resp.StatusCode)
	}

	var result types.SaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != types.StatusUpdated {
		t.Fatalf("expected updated, got %s", result.Status)
	}
}

func TestMessageEndpointSkipWithoutLink(t *testing.T) {
	ts := testServer(t, nil)

	body := `{
		"senderUsername": "Bob",
		"recipientUsername": "Current User",
		"content": "Bob replied to an ad",
		"priorMessage": "hello"
	}`
	resp := postJSON(t, ts.URL+"/api/message", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result types.SaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != types.StatusSkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
}

func TestMessageEndpointValidation(t *testing.T) {
	ts := testServer(t, nil)

	cases := []string{
		`not json`,
		`{"senderUsername": "Alice"}`,
		`{"recipientUsername": "Current User", "content": "x"}`,
	}
	for _, body := range cases {
		resp := postJSON(t, ts.URL+"/api/message", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestMessageEndpointList(t *testing.T) {
	ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/message")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var messages []types.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty list, got %d", len(messages))
	}

	postJSON(t, ts.URL+"/api/message", validMessage)

	resp, err = http.Get(ts.URL + "/api/message")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 1 || messages[0].SenderUsername != "Alice" {
		t.Fatalf("unexpected list: %+v", messages)
	}
}

func TestSessionEndpoint(t *testing.T) {
	ts := testServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/session", `{"name": "main", "token": "secret"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var sess types.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Name != "main" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Token != "" {
		t.Fatal("response must not echo the token")
	}

	resp = postJSON(t, ts.URL+"/api/session", `{"name": "main"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/api/session")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer listResp.Body.Close()

	var sessions []types.Session
	if err := json.NewDecoder(listResp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Token != "" {
		t.Fatalf("unexpected session list: %+v", sessions)
	}
}

func TestStatusEndpoint(t *testing.T) {
	reporter := staticStatus{status: types.MonitorStatus{
		Running:      true,
		State:        "active",
		ScanInterval: "5s",
	}}
	ts := testServer(t, reporter)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var status types.MonitorStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || status.State != "active" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusEndpointWithoutReporter(t *testing.T) {
	ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := testServer(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/message", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestClientSaveRoundTrip(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ts := testServer(t, nil)
	client := NewClient(ts.URL, logger)

	var msg types.Message
	if err := json.NewDecoder(bytes.NewReader([]byte(validMessage))).Decode(&msg); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	result, err := client.Save(context.Background(), &msg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if result.Status != types.StatusCreated {
		t.Fatalf("expected created, got %s", result.Status)
	}

	result, err = client.Save(context.Background(), &msg)
	if err != nil {
		t.Fatalf("Save repeat: %v", err)
	}
	if result.Status != types.StatusUpdated {
		t.Fatalf("expected updated, got %s", result.Status)
	}
}

func TestClientSaveServerError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, logger)
	if _, err := client.Save(context.Background(), &types.Message{SenderUsername: "x"}); err == nil {
		t.Fatal("expected error on server failure")
	}
}
