package e2e

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
)

// multipartFile builds a multipart body with a single "file" part carrying
// the given content type and payload.
func multipartFile(t *testing.T, filename, contentType string, payload []byte) (body *bytes.Buffer, boundary string) {
	t.Helper()

	body = &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write multipart payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return body, writer.Boundary()
}

func postFile(t *testing.T, ta *testApp, filename, contentType string, payload []byte) *http.Response {
	t.Helper()

	body, boundary := multipartFile(t, filename, contentType, payload)
	req, err := http.NewRequest("POST", "/api/audio/validate", body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func wavBytes() []byte {
	payload := []byte("RIFF\x24\x08\x00\x00WAVEfmt ")
	return append(payload, make([]byte, 128)...)
}

func TestValidate_MP3(t *testing.T) {
	ta := setupApp(t)

	resp := postFile(t, ta, "song.mp3", "audio/mpeg", mp3Bytes())
	assertStatus(t, resp, 200)

	body := parseJSON(t, resp)
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body["ok"])
	}
}

func TestValidate_WAV(t *testing.T) {
	ta := setupApp(t)

	resp := postFile(t, ta, "song.wav", "audio/wav", wavBytes())
	assertStatus(t, resp, 200)

	body := parseJSON(t, resp)
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body["ok"])
	}
}

func TestValidate_WrongMagicBytes(t *testing.T) {
	ta := setupApp(t)

	// Declared MP3 but the content is plain text
	resp := postFile(t, ta, "song.mp3", "audio/mpeg", []byte("this is not audio at all, just text"))
	assertStatus(t, resp, 400)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	ta := setupApp(t)

	resp := postFile(t, ta, "song.flac", "audio/flac", mp3Bytes())
	assertStatus(t, resp, 400)
}

func TestValidate_EmptyFile(t *testing.T) {
	ta := setupApp(t)

	resp := postFile(t, ta, "song.mp3", "audio/mpeg", nil)
	assertStatus(t, resp, 400)
}

func TestValidate_MissingFileField(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/audio/validate", "{}", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 400)
}
