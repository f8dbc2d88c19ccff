package model

// Language
type Language string

const (
	LanguagePL Language = "pl"
	LanguageEN Language = "en"
)

// GenerateRequest carries the artist metadata plus a previously obtained
// analysis result into the press-description generation endpoint.
type GenerateRequest struct {
	ArtistName        string         `json:"artistName" validate:"required"`
	SongTitle         string         `json:"songTitle"`
	ArtistDescription string         `json:"artistDescription" validate:"required,min=50,max=1000"`
	Language          Language       `json:"language,omitempty"`
	Template          string         `json:"template,omitempty"`
	Analysis          AnalysisResult `json:"analysis" validate:"required"`
}

// GenerateResponse is the generated press description.
type GenerateResponse struct {
	Language   Language `json:"language"`
	Text       string   `json:"text"`
	Outline    []string `json:"outline,omitempty"`
	ModelName  string   `json:"modelName,omitempty"`
	TokensUsed int      `json:"tokensUsed,omitempty"`
}
