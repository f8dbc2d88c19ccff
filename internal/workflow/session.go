package workflow

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/artistamplifier/api/internal/model"
)

// Session keys. Versioned so a future format change can ignore stale files
// instead of misreading them.
const (
	sessionKeyForm        = "aa:v1:artist_form"
	sessionKeyAnalysis    = "aa:v1:audio_analysis_result"
	sessionKeyDescription = "aa:v1:generated_description"
)

// SessionStore persists workflow artifacts between runs, one JSON file per
// key. All operations are best effort: a broken session file costs the
// saved state, never the workflow.
type SessionStore struct {
	dir string
}

// NewSessionStore creates the store rooted at dir, creating it if needed.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

// SaveForm persists the artist form.
func (s *SessionStore) SaveForm(form ArtistForm) {
	s.write(sessionKeyForm, form)
}

// SaveAnalysis persists the analysis result.
func (s *SessionStore) SaveAnalysis(result *model.AnalysisResult) {
	s.write(sessionKeyAnalysis, result)
}

// SaveDescription persists the generated description.
func (s *SessionStore) SaveDescription(desc *model.GenerateResponse) {
	s.write(sessionKeyDescription, desc)
}

// Restore rebuilds as much workflow state as the session files allow.
func (s *SessionStore) Restore() State {
	state := State{Status: StatusIdle}

	s.read(sessionKeyForm, &state.Form)

	var analysis model.AnalysisResult
	if s.read(sessionKeyAnalysis, &analysis) {
		state.Analysis = &analysis
		state.Status = StatusReady
	}

	var desc model.GenerateResponse
	if s.read(sessionKeyDescription, &desc) && state.Analysis != nil {
		state.Description = &desc
		state.Status = StatusReadyDescription
	}

	return state
}

// Clear removes every session file.
func (s *SessionStore) Clear() {
	for _, key := range []string{sessionKeyForm, sessionKeyAnalysis, sessionKeyDescription} {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to clear session key %s: %v", key, err)
		}
	}
}

// write marshals v and swaps it into place atomically so a crash mid-write
// never leaves a half-written session file.
func (s *SessionStore) write(key string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal session key %s: %v", key, err)
		return
	}

	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		log.Printf("Failed to write session key %s: %v", key, err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.Printf("Failed to write session key %s: %v", key, err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		log.Printf("Failed to write session key %s: %v", key, err)
		return
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		log.Printf("Failed to write session key %s: %v", key, err)
	}
}

func (s *SessionStore) read(key string, v interface{}) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to read session key %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("Session key %s is unreadable, ignoring: %v", key, err)
		return false
	}
	return true
}

// path converts a session key to a file name. Colons are not portable in
// file names, so they become underscores.
func (s *SessionStore) path(key string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(key, ":", "_")+".json")
}
