package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// ErrKind classifies a failed fetch. Verification mismatches are permanent
// for a given object version; network errors are not.
type ErrKind string

const (
	KindNetwork          ErrKind = "network"
	KindSizeMismatch     ErrKind = "size_mismatch"
	KindChecksumMismatch ErrKind = "checksum_mismatch"
	KindTooLarge         ErrKind = "too_large"
)

// Error is a classified fetch failure.
type Error struct {
	Kind     ErrKind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s) (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Expectation is what the caller declared about the object being fetched.
// Size must match exactly; SHA256 is checked only when non-empty.
type Expectation struct {
	Size    int64
	SHA256  string
	MaxSize int64
}

// Download is a verified local copy of a remote object. Callers must call
// Cleanup when done with the file.
type Download struct {
	Path        string
	Size        int64
	SHA256      string
	ContentType string
}

// Cleanup removes the temp file. Safe to call more than once.
func (d *Download) Cleanup() {
	if d.Path == "" {
		return
	}
	if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Fetch] failed to remove temp file %s: %v", d.Path, err)
	}
	d.Path = ""
}

// Fetcher downloads remote audio into temp files and verifies integrity.
type Fetcher struct {
	httpClient *http.Client
	maxRetries int // additional attempts after the first
	tempDir    string
}

// NewFetcher creates a Fetcher. maxRetries is the number of re-attempts
// after the first try; timeout bounds each individual attempt.
func NewFetcher(maxRetries int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		tempDir:    os.TempDir(),
	}
}

// FetchVerified downloads the object at url into a temp file and verifies it
// against want. Size and checksum mismatches are retried up to the
// configured attempt count since an eventually consistent store can serve a
// stale or truncated object shortly after upload. On success the caller owns
// the returned temp file.
func (f *Fetcher) FetchVerified(ctx context.Context, url string, want Expectation) (*Download, error) {
	attempts := f.maxRetries + 1
	var lastErr error
	lastKind := KindNetwork

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: lastKind, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
		}

		dl, kind, err := f.fetchOnce(ctx, url, want)
		if err == nil {
			return dl, nil
		}
		lastErr = err
		lastKind = kind
		log.Printf("[Fetch] attempt %d/%d for %s failed (%s): %v", attempt, attempts, url, kind, err)

		// Oversize objects never shrink on retry
		if kind == KindTooLarge {
			return nil, &Error{Kind: kind, Attempts: attempt, Err: err}
		}
	}

	return nil, &Error{Kind: lastKind, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, want Expectation) (*Download, ErrKind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, KindNetwork, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, KindNetwork, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, KindNetwork, fmt.Errorf("download answered with status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.tempDir, "audio-*.bin")
	if err != nil {
		return nil, KindNetwork, fmt.Errorf("failed to create temp file: %w", err)
	}

	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	// Stream to disk and hash in one pass
	hasher := sha256.New()
	var reader io.Reader = resp.Body
	if want.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, want.MaxSize+1)
	}

	written, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if err != nil {
		cleanup()
		return nil, KindNetwork, fmt.Errorf("failed to write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, KindNetwork, fmt.Errorf("failed to flush download: %w", err)
	}

	if want.MaxSize > 0 && written > want.MaxSize {
		os.Remove(tmp.Name())
		return nil, KindTooLarge, fmt.Errorf("object exceeds %d bytes", want.MaxSize)
	}

	if want.Size > 0 && written != want.Size {
		os.Remove(tmp.Name())
		return nil, KindSizeMismatch, fmt.Errorf("size mismatch: got %d bytes, declared %d", written, want.Size)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if want.SHA256 != "" && sum != want.SHA256 {
		os.Remove(tmp.Name())
		return nil, KindChecksumMismatch, fmt.Errorf("checksum mismatch: got %s, declared %s", sum, want.SHA256)
	}

	return &Download{
		Path:        tmp.Name(),
		Size:        written,
		SHA256:      sum,
		ContentType: resp.Header.Get("Content-Type"),
	}, "", nil
}
