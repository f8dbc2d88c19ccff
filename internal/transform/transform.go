package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/artistamplifier/api/internal/model"
)

// FileMeta is what the caller knows about the analyzed file.
type FileMeta struct {
	Name string
	Size int64
	Type string
}

// Transformer shapes a raw provider result into the canonical
// AnalysisResult. Some result fields arrive as URLs pointing at JSON
// documents; those are fetched and folded in here.
type Transformer struct {
	httpClient *http.Client
	provider   string
}

// NewTransformer creates a Transformer for the named provider.
func NewTransformer(provider string) *Transformer {
	return &Transformer{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		provider:   provider,
	}
}

// Transform builds the canonical result from the provider's raw result map.
// Missing fields become zero values, never errors: a partial analysis is
// still a usable analysis.
func (t *Transformer) Transform(ctx context.Context, resultID string, raw map[string]interface{}, meta FileMeta) (*model.AnalysisResult, error) {
	if raw == nil {
		return nil, fmt.Errorf("provider result is empty")
	}

	// The provider reports tags under capitalized display names; normalized
	// camelCase keys are accepted too so re-transformed results round-trip.
	track := model.AnalyzedTrack{
		Moods:         toStringList(firstOf(raw, "moods", "Mood")),
		Genres:        toStringList(firstOf(raw, "genres", "Genre")),
		Subgenres:     toStringList(firstOf(raw, "subgenres", "Subgenre")),
		Instruments:   toStringList(firstOf(raw, "instruments", "Instruments")),
		Movements:     toStringList(firstOf(raw, "movements", "Movement")),
		EnergyLevel:   getString(raw, "energyLevel", "energy level", "Energy"),
		Emotion:       getString(raw, "emotion", "Emotion"),
		Language:      getString(raw, "language", "Language"),
		Key:           getString(raw, "key", "Root Key"),
		TimeSignature: getString(raw, "timeSignature", "time signature", "Time signature"),
		// The provider really does spell it "Voide gender"
		VoiceGender:   getString(raw, "voiceGender", "voice gender", "Voide gender"),
		VoicePresence: getString(raw, "voicePresence", "voice presence", "Voice presence"),
		MusicalEra:    getString(raw, "musicalEra", "musical era", "Musical era"),
		Duration:      toFloat(raw["duration"]),
		Cover:         getString(raw, "cover"),
	}

	track.Lyrics = t.resolveLyrics(ctx, firstOf(raw, "lyrics", "Lyrics"))
	track.Chords = t.resolveChords(ctx, firstOf(raw, "chords", "Chords structure"))

	var energy interface{} = track.EnergyLevel
	if track.EnergyLevel == "" {
		energy = firstOf(raw, "energy")
	}

	return &model.AnalysisResult{
		ID:       resultID,
		Provider: t.provider,
		Data: model.AnalysisData{
			FileName:      meta.Name,
			Size:          meta.Size,
			Type:          meta.Type,
			Tempo:         PickTempo(raw),
			Mood:          DeriveMood(energy),
			AnalyzedTrack: track,
		},
	}, nil
}

// resolveLyrics accepts either inline text or a URL to a transcript JSON
// document (a list of timed segments with a text field).
func (t *Transformer) resolveLyrics(ctx context.Context, v interface{}) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return ""
	}
	if !isURL(s) {
		return s
	}

	var segments []struct {
		Text string `json:"text"`
	}
	if err := t.fetchJSON(ctx, s, &segments); err != nil {
		log.Printf("[Transform] failed to fetch lyrics document: %v", err)
		return ""
	}

	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if txt := strings.TrimSpace(seg.Text); txt != "" {
			lines = append(lines, txt)
		}
	}
	return strings.Join(lines, "\n")
}

// resolveChords accepts either an inline chord list or a URL to one.
func (t *Transformer) resolveChords(ctx context.Context, v interface{}) []model.ChordInfo {
	var chords []model.ChordInfo

	switch val := v.(type) {
	case string:
		if !isURL(val) {
			return nil
		}
		if err := t.fetchJSON(ctx, val, &chords); err != nil {
			log.Printf("[Transform] failed to fetch chords document: %v", err)
			return nil
		}
	case []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(data, &chords); err != nil {
			return nil
		}
	default:
		return nil
	}

	return SimplifyChords(chords)
}

func (t *Transformer) fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("document fetch answered with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SimplifyChords drops intervals without a chord label or with non-finite
// bounds.
func SimplifyChords(chords []model.ChordInfo) []model.ChordInfo {
	if len(chords) == 0 {
		return nil
	}
	out := make([]model.ChordInfo, 0, len(chords))
	for _, ch := range chords {
		if ch.ChordMajMin == "" || !isFinite(ch.Start) || !isFinite(ch.End) {
			continue
		}
		out = append(out, ch)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PickTempo reads the tempo from bpm or tempo keys, defaulting to 120 when
// the provider reports nothing usable.
func PickTempo(raw map[string]interface{}) int {
	for _, key := range []string{"bpm", "tempo"} {
		if f := toFloat(raw[key]); f > 0 {
			return int(f)
		}
	}
	return 120
}

// DeriveMood maps the provider's energy to a headline mood. Energy arrives
// either as a named bucket or as a number in 0..1.
func DeriveMood(energy interface{}) string {
	switch v := energy.(type) {
	case nil:
		return "balanced"
	case string:
		switch strings.ToLower(v) {
		case "high", "very high":
			return "energetic"
		case "low", "very low":
			return "calm"
		default:
			return "balanced"
		}
	default:
		f := toFloat(v)
		switch {
		case f >= 0.7:
			return "energetic"
		case f > 0 && f <= 0.3:
			return "calm"
		default:
			return "balanced"
		}
	}
}

// MergedGenres joins genres and subgenres into one deduplicated list.
func MergedGenres(track model.AnalyzedTrack) []string {
	return Dedupe(append(append([]string{}, track.Genres...), track.Subgenres...))
}

// Dedupe removes duplicates case-insensitively, keeping first spellings,
// and returns the list sorted.
func Dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// toStringList accepts native arrays and the provider's stringified ones:
// a JSON-array string first, then a bracketed comma list as a fallback.
func toStringList(v interface{}) []string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		var parsed []interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return toStringList(parsed)
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		items := make([]string, 0, 4)
		for _, part := range strings.Split(inner, ",") {
			part = strings.Trim(strings.TrimSpace(part), `"`)
			if part != "" {
				items = append(items, part)
			}
		}
		return Dedupe(items)
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
		return Dedupe(items)
	case []string:
		return Dedupe(val)
	default:
		return nil
	}
}

// firstOf returns the first non-nil value among the given keys.
func firstOf(raw map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func getString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err == nil {
			return f
		}
	}
	return 0
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
