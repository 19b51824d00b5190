package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPHandlerNilPoolNilReady(t *testing.T) {
	handler := HTTPHandler(nil, nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("response parse: %v", err)
	}
	if !st.OK || st.Message != "ok" || !st.Database || !st.Queue {
		t.Errorf("Status = %+v, want all healthy", st)
	}
}

func TestHTTPHandlerQueueReadiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantOK     bool
		wantMsg    string
	}{
		{
			name:       "queue attached",
			ready:      true,
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantMsg:    "ok",
		},
		{
			name:       "queue not attached",
			ready:      false,
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     false,
			wantMsg:    "queue not attached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := HTTPHandler(nil, func() bool { return tt.ready })
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var st Status
			if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
				t.Fatalf("response parse: %v", err)
			}
			if st.OK != tt.wantOK {
				t.Errorf("Status.OK = %v, want %v", st.OK, tt.wantOK)
			}
			if st.Message != tt.wantMsg {
				t.Errorf("Status.Message = %q, want %q", st.Message, tt.wantMsg)
			}
			if st.Queue != tt.ready {
				t.Errorf("Status.Queue = %v, want %v", st.Queue, tt.ready)
			}
		})
	}
}

func TestStatusJSONOmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(Status{OK: false})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["message"]; ok {
		t.Errorf("empty message serialized: %s", b)
	}
	if _, ok := out["database"]; ok {
		t.Errorf("false database serialized: %s", b)
	}
}
