package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/adapters/workerclient"
	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/internal/auth"
	"github.com/satriahrh/arunika-core/internal/balancer"
	"github.com/satriahrh/arunika-core/internal/chat"
	"github.com/satriahrh/arunika-core/internal/registry"
	"github.com/satriahrh/arunika-core/internal/satellite"
	"github.com/satriahrh/arunika-core/internal/tools"
	"github.com/satriahrh/arunika-core/usecase"
)

type testServer struct {
	url  string
	deps Dependencies
}

func setupTestServer(t *testing.T, secret []byte) *testServer {
	logger := zap.NewNop()
	reg := registry.New(30*time.Second, logger)
	chatManager := chat.NewManager(5*time.Minute, logger)

	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, time.Now); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	client := workerclient.New(workerclient.NewHTTPClient(5*time.Second), logger)
	orchestratorDeps := usecase.Dependencies{
		Registry: reg,
		Balancer: balancer.NewRoundRobin(),
		STT:      workerclient.STT{Client: client},
		Router:   workerclient.Router{Client: client},
		LLM:      workerclient.LLM{Client: client},
		TTS:      workerclient.TTS{Client: client},
		Chat:     chatManager,
		Tools:    catalog,
		Profiles: entities.DefaultSpecialityProfiles(),
		Logger:   logger,
	}
	factory := func(conn *satellite.Connection, session *entities.SatelliteSession) satellite.Pipeline {
		return usecase.NewVoiceSessionOrchestrator(session, conn, orchestratorDeps)
	}
	satellites := satellite.NewManager(factory, satellite.ConnectionOptions{}, logger)

	deps := Dependencies{
		Registry:   reg,
		Satellites: satellites,
		Chat:       chatManager,
		AuthSecret: secret,
		Logger:     logger,
	}

	e := echo.New()
	InitRoutes(e, deps)
	server := httptest.NewServer(e)
	t.Cleanup(func() {
		satellites.Shutdown(context.Background())
		server.Close()
	})
	return &testServer{url: server.URL, deps: deps}
}

func (s *testServer) post(t *testing.T, path string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, s.url+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (s *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.url + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestRegisterWorker(t *testing.T) {
	s := setupTestServer(t, nil)

	tests := []struct {
		name           string
		req            domain.RegisterWorkerRequest
		wantStatus     int
		wantSpeciality entities.Speciality
	}{
		{"stt", domain.RegisterWorkerRequest{Type: "stt", Endpoint: "http://localhost:5001"}, http.StatusOK, entities.SpecialityNone},
		{"llm defaults to general", domain.RegisterWorkerRequest{Type: "llm", Endpoint: "http://localhost:5002"}, http.StatusOK, entities.SpecialityGeneral},
		{"llm with type speciality", domain.RegisterWorkerRequest{Type: "llm:coding", Endpoint: "http://localhost:5003"}, http.StatusOK, entities.SpecialityCoding},
		{"llm with field speciality", domain.RegisterWorkerRequest{Type: "LLM", Endpoint: "https://llm.local", Speciality: "Coding|HomeControl"}, http.StatusOK,
			entities.SpecialityCoding | entities.SpecialityHomeControl},
		{"unknown type", domain.RegisterWorkerRequest{Type: "vision", Endpoint: "http://localhost:5004"}, http.StatusBadRequest, 0},
		{"unknown speciality", domain.RegisterWorkerRequest{Type: "llm:cooking", Endpoint: "http://localhost:5004"}, http.StatusBadRequest, 0},
		{"relative endpoint", domain.RegisterWorkerRequest{Type: "tts", Endpoint: "/infer"}, http.StatusBadRequest, 0},
		{"missing endpoint", domain.RegisterWorkerRequest{Type: "tts"}, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.post(t, "/worker/register", tt.req, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var out domain.RegisterWorkerResponse
			json.Unmarshal(body, &out)
			if !out.Accepted || out.WorkerID == "" {
				t.Fatalf("Unexpected response %s", body)
			}
			worker, ok := s.deps.Registry.Get(out.WorkerID)
			if !ok {
				t.Fatal("Worker not stored")
			}
			if worker.Capabilities.Specialities != tt.wantSpeciality {
				t.Errorf("Expected %s, got %s", tt.wantSpeciality, worker.Capabilities.Specialities)
			}
		})
	}
}

func TestRegisterWorker_ReusesSuppliedID(t *testing.T) {
	s := setupTestServer(t, nil)

	for _, endpoint := range []string{"http://a:1", "http://b:2"} {
		resp, _ := s.post(t, "/worker/register", domain.RegisterWorkerRequest{WorkerID: "w-1", Type: "tts", Endpoint: endpoint}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
	}

	workers := s.deps.Registry.GetAllWorkers()
	if len(workers) != 1 || workers[0].Endpoint != "http://b:2" {
		t.Errorf("Re-registration should overwrite, got %+v", workers)
	}
}

func TestHeartbeat(t *testing.T) {
	s := setupTestServer(t, nil)
	_, body := s.post(t, "/worker/register", domain.RegisterWorkerRequest{Type: "router", Endpoint: "http://localhost:5005"}, "")
	var reg domain.RegisterWorkerResponse
	json.Unmarshal(body, &reg)

	tests := []struct {
		name       string
		workerID   string
		wantStatus int
	}{
		{"known worker", reg.WorkerID, http.StatusNoContent},
		{"unknown worker", "ghost", http.StatusNotFound},
		{"missing id", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := s.post(t, "/worker/heartbeat", domain.HeartbeatRequest{WorkerID: tt.workerID}, "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	var workers []WorkerView
	if status := s.get(t, "/worker", &workers); status != http.StatusOK {
		t.Fatalf("GET /worker: %d", status)
	}
	if len(workers) != 1 || !workers[0].Alive || workers[0].Type != entities.WorkerTypeRouter {
		t.Errorf("Unexpected worker list %+v", workers)
	}
}

func TestAuthRequired(t *testing.T) {
	secret := []byte("s3cret")
	s := setupTestServer(t, secret)
	req := domain.RegisterWorkerRequest{Type: "stt", Endpoint: "http://localhost:5001"}

	if resp, _ := s.post(t, "/worker/register", req, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	satelliteToken, _ := auth.GenerateToken(secret, "kitchen-1", auth.RoleSatellite, time.Hour)
	if resp, _ := s.post(t, "/worker/register", req, satelliteToken); resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for a satellite token, got %d", resp.StatusCode)
	}

	workerToken, _ := auth.GenerateToken(secret, "stt-1", auth.RoleWorker, time.Hour)
	if resp, _ := s.post(t, "/worker/register", req, workerToken); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for a worker token, got %d", resp.StatusCode)
	}

	if status := s.get(t, "/health", nil); status != http.StatusOK {
		t.Errorf("Health must stay open, got %d", status)
	}

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/satellite"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Error("WebSocket connection should fail without token")
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+satelliteToken, nil)
	if err != nil {
		t.Fatalf("WebSocket connection with token failed: %v", err)
	}
	ws.Close()
}

type fakeArchive struct {
	chats []entities.ChatContext
	err   error
	limit int
}

func (f *fakeArchive) Save(_ context.Context, chat entities.ChatContext) error {
	f.chats = append(f.chats, chat)
	return f.err
}

func (f *fakeArchive) Recent(_ context.Context, limit int) ([]entities.ChatContext, error) {
	f.limit = limit
	return f.chats, f.err
}

func TestChatEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	s.deps.Chat.AddEvent(entities.NewUserMessage("hello", time.Time{}))

	var current entities.ChatContext
	if status := s.get(t, "/chat", &current); status != http.StatusOK {
		t.Fatalf("GET /chat: %d", status)
	}
	if current.ChatID == "" || len(current.Events) != 1 || current.Events[0].Text != "hello" {
		t.Errorf("Unexpected chat %+v", current)
	}

	if status := s.get(t, "/chat/history", nil); status != http.StatusNotImplemented {
		t.Errorf("Expected 501 without archive, got %d", status)
	}
}

func TestChatHistory(t *testing.T) {
	archive := &fakeArchive{chats: []entities.ChatContext{{ChatID: "old"}}}
	h := &handlers{Dependencies: Dependencies{Archive: archive, Logger: zap.NewNop()}}
	e := echo.New()
	e.GET("/chat/history", h.chatHistory)

	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, defaultHistoryLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=zero", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			archive.limit = 0
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if archive.limit != tt.wantLimit {
				t.Errorf("Expected limit %d, got %d", tt.wantLimit, archive.limit)
			}
		})
	}

	archive.err = errors.New("db down")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

// stubWorker serves /infer with a fixed output for every request
func stubWorker(t *testing.T, output any) string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RequestID string `json:"request_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": req.RequestID,
			"usage":      domain.WorkerUsage{Model: "stub"},
			"output":     output,
		})
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func TestVoiceSessionEndToEnd(t *testing.T) {
	s := setupTestServer(t, nil)

	ttsAudio := make([]byte, 50*640+100)
	workers := []domain.RegisterWorkerRequest{
		{Type: "stt", Endpoint: stubWorker(t, domain.SttOutput{Text: "turn on the lights", Confidence: 0.9})},
		{Type: "router", Endpoint: stubWorker(t, domain.RouterOutput{Speciality: "HomeControl"})},
		{Type: "llm:home_control", Endpoint: stubWorker(t, domain.LlmOutput{Text: "Lights are on."})},
		{Type: "tts", Endpoint: stubWorker(t, domain.TtsOutput{Data: ttsAudio, Encoding: "pcm_s16le", SampleRate: 16000, Channels: 1})},
	}
	for _, w := range workers {
		if resp, body := s.post(t, "/worker/register", w, ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("Register %s: %d %s", w.Type, resp.StatusCode, body)
		}
	}

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/satellite"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket connection failed: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))

	expectText := func(want string) map[string]any {
		t.Helper()
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read %s: %v", want, err)
		}
		var msg map[string]any
		json.Unmarshal(data, &msg)
		if messageType != websocket.TextMessage || msg["type"] != want {
			t.Fatalf("Expected %s, got %s", want, data)
		}
		return msg
	}

	hello := `{"type":"hello","protocol_version":1,"satellite_id":"living-1","area":"living_room","language":"en-US",
		"capabilities":{"speaker":true},"audio_format":{"encoding":"pcm_s16le","sample_rate":16000,"channels":1,"frame_ms":20}}`
	ws.WriteMessage(websocket.TextMessage, []byte(hello))
	ack := expectText("hello.ack")
	if ack["accepted"] != true || ack["protocol_version"] != float64(1) {
		t.Errorf("Unexpected hello.ack %v", ack)
	}

	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.start","session_id":"abc","timestamp":1735732800}`))
	expectText("session.ack")

	for i := 0; i < 50; i++ {
		ws.WriteMessage(websocket.BinaryMessage, make([]byte, 640))
	}
	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio.end","session_id":"abc","reason":"vad"}`))

	start := expectText("tts.start")
	if start["session_id"] != "abc" {
		t.Errorf("Unexpected tts.start %v", start)
	}

	wantFrames := (len(ttsAudio) + 639) / 640
	for i := 0; i < wantFrames; i++ {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read frame %d: %v", i, err)
		}
		if messageType != websocket.BinaryMessage || len(data) != 640 {
			t.Fatalf("Frame %d: type %d size %d", i, messageType, len(data))
		}
	}
	expectText("tts.end")

	events := s.deps.Chat.Snapshot().Events
	if len(events) != 2 || events[0].Text != "turn on the lights" || events[1].Text != "Lights are on." {
		t.Errorf("Unexpected chat %+v", events)
	}

	conn, _ := s.deps.Satellites.Connection(s.deps.Satellites.Connections()[0])
	waitForState(t, conn, satellite.StateConnected)

	var sats []SatelliteView
	s.get(t, "/satellites", &sats)
	if len(sats) != 1 || sats[0].SatelliteID != "living-1" || sats[0].State != "connected" {
		t.Errorf("Unexpected satellites %+v", sats)
	}
}

func TestVoiceSessionWithoutWorkers(t *testing.T) {
	s := setupTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/satellite"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket connection failed: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	send := func(msg string) {
		ws.WriteMessage(websocket.TextMessage, []byte(msg))
	}
	expect := func(want string) {
		t.Helper()
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read %s: %v", want, err)
		}
		if !strings.Contains(string(data), `"type":"`+want+`"`) {
			t.Fatalf("Expected %s, got %s", want, data)
		}
	}

	send(`{"type":"hello","protocol_version":1,"satellite_id":"s","audio_format":{"encoding":"pcm_s16le","sample_rate":16000,"channels":1,"frame_ms":20}}`)
	expect("hello.ack")

	ids := s.deps.Satellites.Connections()
	if len(ids) != 1 {
		t.Fatalf("Expected one connection, got %d", len(ids))
	}
	conn, _ := s.deps.Satellites.Connection(ids[0])

	// A failed pipeline releases the connection so the next session can start
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s-%d", i)
		send(fmt.Sprintf(`{"type":"session.start","session_id":%q}`, id))
		expect("session.ack")
		ws.WriteMessage(websocket.BinaryMessage, make([]byte, 640))
		send(fmt.Sprintf(`{"type":"audio.end","session_id":%q}`, id))

		waitForState(t, conn, satellite.StateReady)
	}
}

func waitForState(t *testing.T, conn *satellite.Connection, want satellite.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected state %s, got %s", want, conn.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
