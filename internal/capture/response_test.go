package capture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestReplaySendsRecordedIdentity(t *testing.T) {
	var gotMethod, gotBody, gotToken, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotToken = r.Header.Get("x-gate-token")
		gotCookie = r.Header.Get("cookie")
		_, _ = w.Write([]byte("payload bytes"))
	}))
	defer srv.Close()

	data := NewResourceData()
	data.RecordRequest(srv.URL, RequestRecord{
		Method: http.MethodPost,
		Headers: map[string]string{
			"x-gate-token":   "abc123",
			"content-length": "9",
		},
		Body: "token=abc",
	})

	s := NewSaver(nil, data, zap.NewNop(), t.TempDir(), func(string) string { return "sid=1" })
	target := filepath.Join(t.TempDir(), "replayed.bin")
	if err := s.replay(srv.URL, target); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method=%q", gotMethod)
	}
	if gotBody != "token=abc" {
		t.Errorf("body=%q, recorded body not re-sent", gotBody)
	}
	if gotToken != "abc123" {
		t.Errorf("x-gate-token=%q", gotToken)
	}
	if gotCookie != "sid=1" {
		t.Errorf("cookie=%q", gotCookie)
	}

	saved, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(saved) != "payload bytes" {
		t.Errorf("saved=%q", saved)
	}
}

func TestReplayRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSaver(nil, NewResourceData(), zap.NewNop(), t.TempDir(), nil)
	target := filepath.Join(t.TempDir(), "never.bin")
	if err := s.replay(srv.URL, target); err == nil {
		t.Fatal("4xx replay should fail")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("failed replay must not leave a file")
	}
}
