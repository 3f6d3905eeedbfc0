package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chatline/internal/channel"
	"github.com/chatline/internal/engine"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/notify"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, *channel.Fake) {
	t.Helper()
	fake := channel.NewFake()
	eng := engine.New(fake, notify.NopNotifier{}, "general")
	if err := eng.Connect("alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv := httptest.NewServer(New(eng, nil, nil).Router())
	t.Cleanup(srv.Close)
	return srv, eng, fake
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestPostMessageAcceptedAndVisibleInState(t *testing.T) {
	srv, _, fake := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"hello","room":"general"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if fake.CountEmitted(channel.EventSendMessage) != 1 {
		t.Fatal("send_message not forwarded")
	}

	stateResp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer stateResp.Body.Close()
	var snap engine.Snapshot
	if err := json.NewDecoder(stateResp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(snap.Messages) != 1 || !snap.Messages[0].Pending || snap.Messages[0].Text != "hello" {
		t.Fatalf("state messages = %+v", snap.Messages)
	}
	if !snap.Connected || snap.Username != "alice" {
		t.Fatalf("state session = %+v", snap)
	}
}

func TestPostMessageRejectsEmpty(t *testing.T) {
	srv, _, fake := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages", `{"text":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if fake.CountEmitted(channel.EventSendMessage) != 0 {
		t.Fatal("rejected intent still forwarded")
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/messages", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestEditDeleteReactionRoutes(t *testing.T) {
	srv, _, fake := newTestServer(t)
	fake.Deliver(channel.EventReceiveMessage, model.Message{ID: "m1", Sender: "bob", Room: "general", Text: "hi"})

	if resp := doJSON(t, http.MethodPut, srv.URL+"/api/messages/m1", `{"content":"hi there"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("edit status = %d", resp.StatusCode)
	}
	raw, ok := fake.LastEmitted(channel.EventEditMessage)
	if !ok || !strings.Contains(string(raw), `"id":"m1"`) {
		t.Fatalf("edit payload = %s", raw)
	}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages/m1/reactions", `{"emoji":"👍"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("reaction status = %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages/m1/reactions", `{"emoji":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty emoji status = %d", resp.StatusCode)
	}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/messages/m1/read", ``); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("read status = %d", resp.StatusCode)
	}

	if resp := doJSON(t, http.MethodDelete, srv.URL+"/api/messages/m1", ``); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if fake.CountEmitted(channel.EventDeleteMessage) != 1 {
		t.Fatal("delete_message not forwarded")
	}
}

func TestTypingJoinAndPrivateRoutes(t *testing.T) {
	srv, eng, fake := newTestServer(t)

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/typing", `{"typing":true}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("typing status = %d", resp.StatusCode)
	}
	if fake.CountEmitted(channel.EventTypingStart) != 1 {
		t.Fatal("typing_start not forwarded")
	}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/rooms/join", `{"room":"tech"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	if got := eng.Snapshot().CurrentRoom; got != "tech" {
		t.Fatalf("CurrentRoom = %q", got)
	}
	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/rooms/join", `{"room":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty room status = %d", resp.StatusCode)
	}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/private", `{"toUserId":"3","message":"psst"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("private status = %d", resp.StatusCode)
	}
	if fake.CountEmitted(channel.EventPrivateMessage) != 1 {
		t.Fatal("private_message not forwarded")
	}
}

func TestEventStreamSendsInitialSnapshot(t *testing.T) {
	_, eng, fake := newTestServer(t)
	fake.Deliver(channel.EventReceiveMessage, model.Message{ID: "m1", Sender: "bob", Room: "general", Text: "hi"})

	s := New(eng, nil, nil)
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	s.Router().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	scanner := bufio.NewScanner(rec.Body)
	var dataLine string
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			dataLine = strings.TrimPrefix(scanner.Text(), "data: ")
			break
		}
	}
	if dataLine == "" {
		t.Fatal("no data line in stream")
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(dataLine), &snap); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m1" {
		t.Fatalf("stream snapshot = %+v", snap.Messages)
	}
}

func TestEventStreamOutlivesServerWriteTimeout(t *testing.T) {
	fake := channel.NewFake()
	eng := engine.New(fake, notify.NopNotifier{}, "general")
	if err := eng.Connect("alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv := httptest.NewUnstartedServer(New(eng, nil, nil).Router())
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	readSSEData(t, reader) // initial snapshot

	// Past the server's write timeout the stream must still be alive.
	time.Sleep(400 * time.Millisecond)
	fake.Deliver(channel.EventReceiveMessage, model.Message{ID: "late", Sender: "bob", Room: "general", Text: "still here"})

	data := readSSEData(t, reader)
	if !strings.Contains(data, `"late"`) {
		t.Fatalf("late event not delivered: %s", data)
	}
}

func readSSEData(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestPushEndpointsMountedWhenConfigured(t *testing.T) {
	fake := channel.NewFake()
	eng := engine.New(fake, notify.NopNotifier{}, "general")
	dir := t.TempDir()
	push, err := notify.NewWebPush(filepath.Join(dir, "vapid.json"), filepath.Join(dir, "subs.json"))
	if err != nil {
		t.Fatalf("NewWebPush: %v", err)
	}
	srv := httptest.NewServer(New(eng, push, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/push/vapid-public")
	if err != nil {
		t.Fatalf("GET vapid-public: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["publicKey"] == "" {
		t.Fatal("empty public key")
	}

	sub := doJSON(t, http.MethodPost, srv.URL+"/api/push/subscribe",
		`{"endpoint":"https://push.example/abc","keys":{"p256dh":"pk","auth":"ak"}}`)
	if sub.StatusCode != http.StatusCreated {
		t.Fatalf("subscribe status = %d", sub.StatusCode)
	}

	bad := doJSON(t, http.MethodPost, srv.URL+"/api/push/subscribe", `{"endpoint":""}`)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty endpoint status = %d", bad.StatusCode)
	}

	// Without push configured the endpoints are absent.
	bare, _, _ := newTestServer(t)
	missing, err := http.Get(bare.URL + "/api/push/vapid-public")
	if err != nil {
		t.Fatalf("GET on bare server: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("unconfigured push status = %d, want 404", missing.StatusCode)
	}
}
