package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// SidecarEntity is one entity in a mock NER sidecar response. A zero
// Score is left out of the JSON.
type SidecarEntity struct {
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// SidecarServer is an httptest.Server that speaks the NER sidecar protocol.
type SidecarServer struct {
	*httptest.Server
	// Calls counts POST /analyze requests.
	Calls atomic.Int32
	// LastLanguage is the language of the most recent request.
	LastLanguage atomic.Value
}

// NewSidecarServer starts a mock sidecar. POST /analyze returns entities
// for every request; GET /health returns 200. Status, when non-zero,
// replaces the /analyze status code to simulate a failing backend.
// Caller must call server.Close() or register t.Cleanup(server.Close).
func NewSidecarServer(entities []SidecarEntity, status int) *SidecarServer {
	s := &SidecarServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.Calls.Add(1)
		var req struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.LastLanguage.Store(req.Language)
		if status != 0 && status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": entities})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.Server = httptest.NewServer(mux)
	return s
}
