package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestFetchVerified_Success(t *testing.T) {
	payload := []byte("ID3 fake mp3 payload with some bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(2, 5*time.Second)
	dl, err := f.FetchVerified(context.Background(), srv.URL, Expectation{
		Size:   int64(len(payload)),
		SHA256: sha256Hex(payload),
	})
	require.NoError(t, err)
	defer dl.Cleanup()

	assert.Equal(t, int64(len(payload)), dl.Size)
	assert.Equal(t, sha256Hex(payload), dl.SHA256)
	assert.Equal(t, "audio/mpeg", dl.ContentType)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	dl.Cleanup()
	_, err = os.Stat(dl.Path)
	assert.True(t, dl.Path == "" || os.IsNotExist(err))
}

func TestFetchVerified_SizeMismatchUsesAllAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	f := NewFetcher(2, 5*time.Second)
	_, err := f.FetchVerified(context.Background(), srv.URL, Expectation{Size: 9999})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindSizeMismatch, fetchErr.Kind)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchVerified_ChecksumMismatch(t *testing.T) {
	payload := []byte("RIFFxxxxWAVE data")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(0, 5*time.Second)
	_, err := f.FetchVerified(context.Background(), srv.URL, Expectation{
		Size:   int64(len(payload)),
		SHA256: sha256Hex([]byte("different bytes")),
	})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindChecksumMismatch, fetchErr.Kind)
}

func TestFetchVerified_TooLargeStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(make([]byte, 128))
	}))
	defer srv.Close()

	f := NewFetcher(2, 5*time.Second)
	_, err := f.FetchVerified(context.Background(), srv.URL, Expectation{MaxSize: 64})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTooLarge, fetchErr.Kind)
	assert.Equal(t, int32(1), calls.Load(), "oversize downloads should not be retried")
}

func TestFetchVerified_ServerErrorIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(0, 5*time.Second)
	_, err := f.FetchVerified(context.Background(), srv.URL, Expectation{})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindNetwork, fetchErr.Kind)
}
