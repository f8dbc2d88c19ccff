package e2e

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mp3Bytes is a minimal payload that passes the MP3 magic-byte check.
func mp3Bytes() []byte {
	return append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), make([]byte, 256)...)
}

func serveBytes(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func analyzeBody(url string, size int64, checksum string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"url":            url,
		"fileName":       "song.mp3",
		"size":           size,
		"type":           "audio/mpeg",
		"checksumSha256": checksum,
	})
	return string(body)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestAnalyze_MockCompletesInline(t *testing.T) {
	ta := setupApp(t)
	payload := mp3Bytes()
	srv := serveBytes(t, payload)

	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze",
		analyzeBody(srv.URL, int64(len(payload)), sha256Hex(payload)), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	body := parseJSON(t, resp)
	if body["provider"] != "mock" {
		t.Errorf("expected mock provider, got %v", body["provider"])
	}
	jobID, _ := body["id"].(string)
	if jobID == "" {
		t.Fatal("expected a job id in the result")
	}

	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatal("expected data object")
	}
	if data["tempo"] != float64(120) {
		t.Errorf("expected mock tempo 120, got %v", data["tempo"])
	}
	if data["fileName"] != "song.mp3" {
		t.Errorf("expected fileName song.mp3, got %v", data["fileName"])
	}

	// A completed job answers the same way from the status endpoint
	resp, err = doRequest(ta.app, "GET", "/api/audio/analyze/status/"+jobID, "", nil)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	assertStatus(t, resp, 200)
	status := parseJSON(t, resp)
	if status["id"] != jobID {
		t.Errorf("expected job %s, got %v", jobID, status["id"])
	}
}

func TestAnalyze_SizeMismatch(t *testing.T) {
	ta := setupApp(t)
	payload := mp3Bytes()
	srv := serveBytes(t, payload)

	// Declare 100 bytes more than the upstream actually serves
	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze",
		analyzeBody(srv.URL, int64(len(payload))+100, ""), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 422)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "SIZE_MISMATCH" {
		t.Errorf("expected SIZE_MISMATCH, got %s", code)
	}
}

func TestAnalyze_ChecksumMismatch(t *testing.T) {
	ta := setupApp(t)
	payload := mp3Bytes()
	srv := serveBytes(t, payload)

	wrongChecksum := sha256Hex([]byte("something else entirely"))
	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze",
		analyzeBody(srv.URL, int64(len(payload)), wrongChecksum), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 422)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "CHECKSUM_MISMATCH" {
		t.Errorf("expected CHECKSUM_MISMATCH, got %s", code)
	}
}

func TestAnalyze_UpstreamDown(t *testing.T) {
	ta := setupApp(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze",
		analyzeBody(srv.URL, 1024, ""), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 502)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "DOWNLOAD_FAILED" {
		t.Errorf("expected DOWNLOAD_FAILED, got %s", code)
	}
}

func TestAnalyze_ValidationErrors(t *testing.T) {
	ta := setupApp(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", "{}"},
		{"missing url", `{"fileName":"a.mp3","size":100,"type":"audio/mpeg"}`},
		{"bad url", `{"url":"not-a-url","fileName":"a.mp3","size":100,"type":"audio/mpeg"}`},
		{"zero size", `{"url":"https://cdn/a.mp3","fileName":"a.mp3","size":0,"type":"audio/mpeg"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, "POST", "/api/audio/analyze", tc.body, nil)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, 400)

			body := parseJSON(t, resp)
			if code := errorCode(t, body); code != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %s", code)
			}
		})
	}
}

func TestAnalyze_UnsupportedType(t *testing.T) {
	ta := setupApp(t)

	body := `{"url":"https://cdn/a.flac","fileName":"a.flac","size":100,"type":"audio/flac"}`
	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 400)
}

func TestAnalyzeStatus_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/api/audio/analyze/status/no-such-job", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestAnalyze_RateLimitEnforced(t *testing.T) {
	// A dedicated app with a tight analyze limit: the sixth request in the
	// window must get a 429 with a Retry-After header.
	ta := setupAppWithAnalyzeLimit(t, 5)
	payload := mp3Bytes()
	srv := serveBytes(t, payload)
	body := analyzeBody(srv.URL, int64(len(payload)), "")

	for i := 0; i < 5; i++ {
		resp, err := doRequest(ta.app, "POST", "/api/audio/analyze", body, nil)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode == 429 {
			t.Fatalf("request %d rate limited too early", i)
		}
		readBody(t, resp)
	}

	resp, err := doRequest(ta.app, "POST", "/api/audio/analyze", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 429)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	parsed := parseJSON(t, resp)
	if code := errorCode(t, parsed); code != "RATE_LIMIT" {
		t.Errorf("expected RATE_LIMIT, got %s", code)
	}
}
