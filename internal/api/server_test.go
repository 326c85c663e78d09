package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-twin/internal/history"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-twin/internal/session"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
	"github.com/nerrad567/gray-logic-twin/migrations"
)

var testDevice = uuid.MustParse("784f394c-42b6-435a-983c-b7beff2784f9")

var testWSConfig = config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

type mockPublisher struct {
	mu        sync.Mutex
	published map[twin.Scope]map[string]twin.Value
	err       error
}

func (m *mockPublisher) PublishAttributes(_ context.Context, _ uuid.UUID, scope twin.Scope, values map[string]twin.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.published == nil {
		m.published = make(map[twin.Scope]map[string]twin.Value)
	}
	m.published[scope] = values
	return nil
}

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool { return f.connected }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

type testEnv struct {
	srv       *Server
	router    http.Handler
	session   *session.Session
	history   *history.SQLiteRepository
	publisher *mockPublisher
}

// newTestEnv builds a server around a real session, hub and in-memory
// history database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testLogger()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := history.NewSQLiteRepository(db.DB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(testWSConfig, log)
	go hub.Run(ctx)

	pub := &mockPublisher{}
	sess, err := session.New(session.Deps{
		DeviceID:  testDevice,
		Publisher: pub,
		Recorders: []session.Recorder{repo},
		Hub:       hub,
		Logger:    log,

		AverageWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:      testWSConfig,
		Logger:  log,
		Session: sess,
		History: repo,
		MQTT:    fakeMQTT{connected: true},
		DB:      db.DB,
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{srv: srv, router: srv.buildRouter(), session: sess, history: repo, publisher: pub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return v
}

// seed applies updates to the twin the way an inbound notification would.
func (e *testEnv) seed(t *testing.T, scope twin.Scope, updates ...twin.AttributeUpdate) {
	t.Helper()
	e.session.Twin().ApplyUpdates(scope, updates)
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger error = nil")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without session error = nil")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decodeBody[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" || resp["device_id"] != testDevice.String() {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetTwin(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, twin.ScopeServer,
		twin.AttributeUpdate{Key: twin.AttrActive, Timestamp: 1, Value: twin.Bool(true)},
		twin.AttributeUpdate{Key: "fw", Timestamp: 1, Value: twin.String("1.2")},
	)
	env.seed(t, twin.ScopeShared, twin.AttributeUpdate{Key: "level", Timestamp: 1, Value: twin.Int(3)})

	w := env.do(t, http.MethodGet, "/api/v1/twin", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	resp := decodeBody[TwinResponse](t, w)
	if !resp.Active {
		t.Error("active = false, want true")
	}
	if resp.DeviceID != testDevice.String() {
		t.Errorf("device_id = %q", resp.DeviceID)
	}
	if resp.Scopes.Len() != 3 {
		t.Errorf("scopes hold %d keys, want 3", resp.Scopes.Len())
	}
	if v := resp.Scopes[twin.ScopeShared]["level"]; !v.Equal(twin.Int(3)) {
		t.Errorf("shared level = %s", v)
	}
}

func TestGetScopeAndAttribute(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, twin.ScopeClient, twin.AttributeUpdate{Key: "mode", Timestamp: 1, Value: twin.String("eco")})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"scope", "/api/v1/twin/CLIENT_SCOPE", http.StatusOK},
		{"empty scope", "/api/v1/twin/SHARED_SCOPE", http.StatusOK},
		{"unknown scope", "/api/v1/twin/NOPE", http.StatusBadRequest},
		{"attribute", "/api/v1/twin/CLIENT_SCOPE/mode", http.StatusOK},
		{"missing attribute", "/api/v1/twin/CLIENT_SCOPE/other", http.StatusNotFound},
		{"attribute unknown scope", "/api/v1/twin/NOPE/mode", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodGet, tt.path, ""); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	resp := decodeBody[AttributeResponse](t, env.do(t, http.MethodGet, "/api/v1/twin/CLIENT_SCOPE/mode", ""))
	if resp.Key != "mode" || !resp.Value.Equal(twin.String("eco")) {
		t.Errorf("attribute = %+v", resp)
	}

	scope := decodeBody[ScopeResponse](t, env.do(t, http.MethodGet, "/api/v1/twin/SHARED_SCOPE", ""))
	if scope.Attributes == nil || len(scope.Attributes) != 0 {
		t.Errorf("empty scope attributes = %v, want {}", scope.Attributes)
	}
}

func TestDiff(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, twin.ScopeShared,
		twin.AttributeUpdate{Key: "a", Timestamp: 1, Value: twin.Int(1)},
		twin.AttributeUpdate{Key: "n", Timestamp: 1, Value: twin.Null()},
	)
	body := `{"SHARED_SCOPE":{"a":1,"n":5,"new":true}}`

	tests := []struct {
		name      string
		query     string
		wantKeys  []string
		wantIgnor bool
	}{
		{"strict by default", "", []string{"n", "new"}, false},
		{"strict explicit", "?ignore_twin_null=false", []string{"n", "new"}, false},
		{"ignore twin null", "?ignore_twin_null=true", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/twin/diff"+tt.query, body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
			}
			resp := decodeBody[DiffResponse](t, w)
			if resp.IgnoreTwinNull != tt.wantIgnor {
				t.Errorf("ignore_twin_null = %v, want %v", resp.IgnoreTwinNull, tt.wantIgnor)
			}
			got := resp.Diff[twin.ScopeShared]
			if len(got) != len(tt.wantKeys) {
				t.Fatalf("diff = %v, want keys %v", got, tt.wantKeys)
			}
			for _, k := range tt.wantKeys {
				if _, ok := got[k]; !ok {
					t.Errorf("diff missing %q", k)
				}
			}
		})
	}

	if len(env.publisher.published) != 0 {
		t.Error("diff published attributes")
	}
}

func TestDiff_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		query      string
		body       string
		wantStatus int
	}{
		{"bad mode", "?ignore_twin_null=maybe", `{}`, http.StatusBadRequest},
		{"not json", "", `nope`, http.StatusBadRequest},
		{"array", "", `[1]`, http.StatusBadRequest},
		{"unknown scope", "", `{"NOPE":{"a":1}}`, http.StatusBadRequest},
		{"nested value", "", `{"CLIENT_SCOPE":{"a":{"b":1}}}`, http.StatusBadRequest},
		{"too large", "", `{"CLIENT_SCOPE":{"a":"` + strings.Repeat("x", maxRequestBodySize) + `"}}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/twin/diff"+tt.query, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeBody[Error](t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("error body status = %d", resp.Status)
			}
		})
	}
}

func TestPush(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, twin.ScopeShared, twin.AttributeUpdate{Key: "a", Timestamp: 1, Value: twin.Int(1)})

	w := env.do(t, http.MethodPost, "/api/v1/twin/push", `{"SHARED_SCOPE":{"a":1,"b":2},"CLIENT_SCOPE":{}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	resp := decodeBody[DiffResponse](t, w)
	if _, ok := resp.Diff[twin.ScopeClient]; ok {
		t.Error("empty scope returned in push diff")
	}

	published := env.publisher.published[twin.ScopeShared]
	if len(published) != 1 || !published["b"].Equal(twin.Int(2)) {
		t.Errorf("published = %v, want only b=2", env.publisher.published)
	}
}

func TestPush_PublishError(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker down")

	w := env.do(t, http.MethodPost, "/api/v1/twin/push", `{"SHARED_SCOPE":{"b":2}}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		u := twin.AttributeUpdate{Key: "temperature", Timestamp: i * 1000, Value: twin.Int(20 + i)}
		if err := env.history.RecordUpdate(ctx, testDevice, twin.ScopeShared, u); err != nil {
			t.Fatalf("RecordUpdate() error = %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/history/SHARED_SCOPE/temperature?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	resp := decodeBody[HistoryResponse](t, w)
	if resp.Count != 2 || resp.Entries[0].Timestamp != 3000 {
		t.Errorf("history = %+v", resp)
	}

	for _, path := range []string{
		"/api/v1/history/SHARED_SCOPE/temperature?limit=0",
		"/api/v1/history/SHARED_SCOPE/temperature?limit=abc",
		"/api/v1/history/NOPE/temperature",
	} {
		if w := env.do(t, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, w.Code)
		}
	}
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.srv.history = nil
	env.router = env.srv.buildRouter()

	if w := env.do(t, http.MethodGet, "/api/v1/history/SHARED_SCOPE/x", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSubscriptionsAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, twin.ScopeClient, twin.AttributeUpdate{Key: "a", Timestamp: 1, Value: twin.Int(1)})
	if _, err := env.session.Subscribe(context.Background(), twin.ScopeShared, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	subs := decodeBody[map[string]map[string]string](t, env.do(t, http.MethodGet, "/api/v1/subscriptions", ""))
	if len(subs["subscriptions"]) != 1 {
		t.Errorf("subscriptions = %v", subs)
	}

	metrics := decodeBody[SystemMetrics](t, env.do(t, http.MethodGet, "/api/v1/metrics", ""))
	if metrics.Version != "test" || !metrics.MQTT.Connected {
		t.Errorf("metrics = %+v", metrics)
	}
	if metrics.Twin.TotalKeys != 1 || metrics.Twin.Keys[twin.ScopeClient] != 1 || metrics.Twin.Subscriptions != 1 {
		t.Errorf("twin metrics = %+v", metrics.Twin)
	}
	if metrics.Database == nil {
		t.Error("database metrics missing")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t)
	handler := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(testWSConfig, testLogger())

	subscribed := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{session.ChannelAttributeUpdated: {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"something.else": {}}}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(session.ChannelAttributeUpdated, map[string]any{"scope": "CLIENT_SCOPE"})

	select {
	case msg := <-subscribed.send:
		var ws WSMessage
		if err := json.Unmarshal(msg, &ws); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ws.Type != WSTypeEvent || ws.EventType != session.ChannelAttributeUpdated {
			t.Errorf("message = %+v", ws)
		}
		if !bytes.Contains(ws.Payload, []byte("CLIENT_SCOPE")) {
			t.Errorf("payload = %s", ws.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client received a broadcast")
	default:
	}

	hub.Unregister(subscribed)
	hub.Unregister(subscribed) // second call must not double-close
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

func TestWebSocket_AttributeUpdates(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?channels=" + session.ChannelAttributeUpdated
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	resp.Body.Close() //nolint:errcheck // Handshake response

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	payload := `{"subscriptionId":1,"data":{"temperature":[[1700000000000,21.5]]}}`
	if _, err := env.session.HandleScopedNotification(context.Background(), twin.ScopeShared, []byte(payload)); err != nil {
		t.Fatalf("HandleScopedNotification() error = %v", err)
	}

	//nolint:errcheck // Test read deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != session.ChannelAttributeUpdated || !bytes.Contains(msg.Payload, []byte("temperature")) {
		t.Errorf("message = %s", data)
	}
}

func TestWebSocket_SubscribeMessage(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	resp.Body.Close() //nolint:errcheck // Handshake response

	req := `{"type":"subscribe","id":"1","payload":{"channels":["attribute.updated"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	//nolint:errcheck // Test read deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "1" || !bytes.Contains(msg.Payload, []byte(`"subscribed"`)) {
		t.Errorf("response = %s", data)
	}
}

func TestGetAverage(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"data": {"flow": [[1, "2"], [2, 4]], "mode": [[1, "AUTO"]]}}`)
	if _, err := env.session.HandleScopedNotification(context.Background(), twin.ScopeLatestTelemetry, payload); err != nil {
		t.Fatalf("HandleScopedNotification() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/averages/flow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[AverageResponse](t, w)
	if resp.Key != "flow" || resp.Average != 3 {
		t.Errorf("average = %+v, want flow 3", resp)
	}

	for _, key := range []string{"mode", "missing"} {
		if w := env.do(t, http.MethodGet, "/api/v1/averages/"+key, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET /averages/%s status = %d, want 404", key, w.Code)
		}
	}
}
