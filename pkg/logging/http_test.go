package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestAccessLog(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/games?page=2", nil)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Access log is not a single JSON line: %v (%q)", err, buf.String())
	}

	if line["method"] != "GET" {
		t.Errorf("method = %v, want GET", line["method"])
	}
	if line["url"] != "/api/games?page=2" {
		t.Errorf("url = %v, want /api/games?page=2", line["url"])
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v, want %d", line["status"], http.StatusTeapot)
	}
	if line["size"] != float64(len("short and stout")) {
		t.Errorf("size = %v, want %d", line["size"], len("short and stout"))
	}
	if line["user_agent"] != "test-agent" {
		t.Errorf("user_agent = %v, want test-agent", line["user_agent"])
	}
	if line["req_id"] != w.Header().Get(RequestIDHeader) {
		t.Errorf("req_id = %v, want %s", line["req_id"], w.Header().Get(RequestIDHeader))
	}
}

func TestAccessLogServerErrorsAtWarn(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	buf := &bytes.Buffer{}

	handler := AccessLog(zerolog.New(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/games", nil))

	if !bytes.Contains(buf.Bytes(), []byte(`"level":"warn"`)) {
		t.Errorf("Expected warn level for 502, got %q", buf.String())
	}
}
