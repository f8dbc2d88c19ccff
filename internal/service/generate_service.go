package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/transform"
)

const defaultSystemPrompt = `You are a music industry copywriter who turns artist profiles and audio analysis into polished press descriptions.
Write in the requested language, in a confident editorial voice.
Ground every claim in the provided material; never invent facts about the artist.
Answer with the press description only, no preamble and no markdown.`

// DescriptionGenerator defines the interface for press description generation
type DescriptionGenerator interface {
	Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error)
}

// GenerateService produces press descriptions from an artist profile plus a
// completed audio analysis.
type GenerateService struct {
	llmClient    *client.LLMClient
	retry        client.RetryPolicy
	systemPrompt string
}

func NewGenerateService(llmClient *client.LLMClient, retry client.RetryPolicy, systemPrompt string) *GenerateService {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &GenerateService{
		llmClient:    llmClient,
		retry:        retry,
		systemPrompt: systemPrompt,
	}
}

// Generate builds the prompt and runs it through the model under the retry
// policy. Transient model failures burn the backoff schedule; terminal ones
// surface as ProviderError for the handler to map.
func (s *GenerateService) Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	language := req.Language
	if language == "" {
		language = model.LanguageEN
	}

	// Use mock response if client is not configured
	if s.llmClient == nil || !s.llmClient.IsConfigured() {
		return s.generateMock(req, language)
	}

	userPrompt := s.buildPrompt(req, language)

	var chat *client.ChatResult
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		chat, callErr = s.llmClient.ChatCompletion(ctx, s.systemPrompt, userPrompt)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("description generation failed: %w", err)
	}

	text := strings.TrimSpace(chat.Content)
	return &model.GenerateResponse{
		Language:   language,
		Text:       text,
		Outline:    buildOutline(text),
		ModelName:  chat.Model,
		TokensUsed: chat.TokensUsed,
	}, nil
}

// buildPrompt lays out the artist profile and the analysis facts the model
// should draw from. The cover field is deliberately left out of the prompt.
func (s *GenerateService) buildPrompt(req *model.GenerateRequest, language model.Language) string {
	track := req.Analysis.Data.AnalyzedTrack

	var b strings.Builder
	langName := "English"
	if language == model.LanguagePL {
		langName = "Polish"
	}
	fmt.Fprintf(&b, "Write a press description in %s for the following release.\n\n", langName)

	fmt.Fprintf(&b, "Artist: %s\n", req.ArtistName)
	if req.SongTitle != "" {
		fmt.Fprintf(&b, "Song title: %s\n", req.SongTitle)
	}
	fmt.Fprintf(&b, "About the artist: %s\n\n", req.ArtistDescription)

	b.WriteString("Audio analysis of the song:\n")
	writeFact(&b, "Tempo", fmt.Sprintf("%d BPM", req.Analysis.Data.Tempo))
	writeFact(&b, "Overall mood", req.Analysis.Data.Mood)
	writeFact(&b, "Key", track.Key)
	writeFact(&b, "Time signature", track.TimeSignature)
	writeFact(&b, "Energy level", track.EnergyLevel)
	writeFact(&b, "Emotion", track.Emotion)
	writeFact(&b, "Genres", strings.Join(transform.MergedGenres(track), ", "))
	writeFact(&b, "Moods", strings.Join(track.Moods, ", "))
	writeFact(&b, "Instruments", strings.Join(track.Instruments, ", "))
	writeFact(&b, "Vocals", track.VoicePresence)
	writeFact(&b, "Musical era", track.MusicalEra)
	if track.Duration > 0 {
		writeFact(&b, "Duration", fmt.Sprintf("%.0f seconds", track.Duration))
	}
	if excerpt := lyricsExcerpt(track.Lyrics, 500); excerpt != "" {
		fmt.Fprintf(&b, "\nLyrics excerpt:\n%s\n", excerpt)
	}

	if req.Template != "" {
		fmt.Fprintf(&b, "\nFollow this structure:\n%s\n", req.Template)
	}

	b.WriteString("\nThe description should be 2-4 paragraphs, ready to publish.")
	return b.String()
}

func writeFact(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func lyricsExcerpt(lyrics string, max int) string {
	lyrics = strings.TrimSpace(lyrics)
	if lyrics == "" {
		return ""
	}
	if len(lyrics) <= max {
		return lyrics
	}
	cut := lyrics[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

// buildOutline takes the first line of each paragraph as a rough outline.
func buildOutline(text string) []string {
	var outline []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		line := para
		if idx := strings.IndexByte(line, '\n'); idx > 0 {
			line = line[:idx]
		}
		if len(line) > 80 {
			line = strings.TrimSpace(line[:80])
		}
		outline = append(outline, line)
	}
	return outline
}

// Mock implementation for development/testing
func (s *GenerateService) generateMock(req *model.GenerateRequest, language model.Language) (*model.GenerateResponse, error) {
	track := req.Analysis.Data.AnalyzedTrack
	genres := strings.Join(transform.MergedGenres(track), ", ")
	if genres == "" {
		genres = "contemporary"
	}

	text := fmt.Sprintf(
		"%s returns with a new single that distills everything the project has been building toward. "+
			"Rooted in %s, the track moves at %d BPM with a %s pulse that carries it from the first bar to the last.\n\n"+
			"%s",
		req.ArtistName, genres, req.Analysis.Data.Tempo, req.Analysis.Data.Mood,
		req.ArtistDescription,
	)

	return &model.GenerateResponse{
		Language:  language,
		Text:      text,
		Outline:   buildOutline(text),
		ModelName: "mock",
	}, nil
}
