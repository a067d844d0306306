package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/api/handlers"
	"github.com/NethermindEth/eternal-regression/communication"
	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/registry"
	"github.com/NethermindEth/eternal-regression/roster"
)

func testDeps(hub *communication.Hub) handlers.Deps {
	return handlers.Deps{
		Cast:     roster.Default(),
		Backend:  ai.NewOfflineBackend(9, 0.5),
		Agent:    core.AgentConfig{Sampling: ai.DefaultSampling(), RetryDelay: time.Millisecond},
		Registry: registry.New(),
		Hub:      hub,
	}
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func startRun(t *testing.T, r http.Handler, rounds int) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/regressions", map[string]any{"rounds": rounds, "seed": 3})
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decode(t, w, &resp)
	return resp.ID
}

func waitForStatus(t *testing.T, r http.Handler, id string, want registry.RunStatus) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := do(t, r, http.MethodGet, "/api/regressions/"+id, nil)
		var resp struct {
			Regression registry.RunInfo `json:"regression"`
		}
		decode(t, w, &resp)
		if resp.Regression.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", id, want)
}

func TestRegressionLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testDeps(nil))

	w := do(t, router, http.MethodGet, "/api/cast", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "HapLotes405") {
		t.Fatalf("cast = %d %s", w.Code, w.Body.String())
	}

	id := startRun(t, router, 2)
	waitForStatus(t, router, id, registry.RunCompleted)

	w = do(t, router, http.MethodGet, "/api/regressions/"+id+"/events?after=0", nil)
	var events struct {
		Events []core.Event `json:"events"`
		Next   int          `json:"next"`
	}
	decode(t, w, &events)
	if len(events.Events) == 0 || events.Next != len(events.Events) {
		t.Fatalf("events = %d, next = %d", len(events.Events), events.Next)
	}
	if events.Events[0].Type != core.EventStart || events.Events[len(events.Events)-1].Type != core.EventComplete {
		t.Errorf("events run from %s to %s", events.Events[0].Type, events.Events[len(events.Events)-1].Type)
	}

	w = do(t, router, http.MethodGet, "/api/regressions/"+id+"/events?after="+strconv.Itoa(events.Next), nil)
	decode(t, w, &events)
	if len(events.Events) != 0 {
		t.Errorf("polling past the end returned %d events", len(events.Events))
	}

	w = do(t, router, http.MethodGet, "/api/regressions/"+id+"/analysis", nil)
	var analysis struct {
		TotalRounds int `json:"total_rounds"`
	}
	decode(t, w, &analysis)
	if analysis.TotalRounds != 2 {
		t.Errorf("analysis total_rounds = %d, want 2", analysis.TotalRounds)
	}

	w = do(t, router, http.MethodGet, "/api/regressions/"+id+"/transcript", nil)
	var thread communication.ForumThread
	decode(t, w, &thread)
	if len(thread.Messages) == 0 || thread.Messages[0].Kind != core.EventOracle {
		t.Errorf("transcript starts with %+v", thread.Messages)
	}

	w = do(t, router, http.MethodGet, "/api/regressions", nil)
	if !strings.Contains(w.Body.String(), id) {
		t.Errorf("list does not include %s", id)
	}

	if w = do(t, router, http.MethodDelete, "/api/regressions/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w = do(t, router, http.MethodGet, "/api/regressions/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestStartRegressionValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testDeps(nil))

	tests := []struct {
		name string
		body any
	}{
		{"missing rounds", map[string]any{}},
		{"zero rounds", map[string]any{"rounds": 0}},
		{"too many rounds", map[string]any{"rounds": handlers.MaxRounds + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/api/regressions", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	if w := do(t, router, http.MethodGet, "/api/regressions/nope/events?after=x", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", w.Code)
	}
}

func TestWebSocketFeed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := communication.NewHub(nil)
	defer hub.Close()
	srv := httptest.NewServer(NewRouter(testDeps(hub)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	id := startRun(t, srv.Config.Handler, 1)

	seen := map[string]int{}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg communication.WSEvent
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		if msg.RunID != id {
			continue
		}
		seen[msg.Type]++
		if msg.Type == communication.EventRegressionFinished {
			break
		}
	}
	if seen[communication.EventRegressionStarted] != 1 || seen[communication.EventRegressionEvent] == 0 {
		t.Errorf("feed messages = %v", seen)
	}
}
