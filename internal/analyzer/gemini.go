package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

// Analyzer classifies one image via a multimodal model. Implementations are
// stateless: the same input may be submitted again as an independent call.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*models.AnalysisData, error)
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// classificationPrompt is the fixed instruction sent alongside every image.
// The model is asked for a strict single-object JSON response matching
// models.AnalysisData.
const classificationPrompt = `Analiza la imagen proporcionada actuando como un crítico experto en arte de Manga, Anime y Manhwa.
Devuelve un objeto JSON estricto (sin markdown, sin bloques de código) con la siguiente estructura.

Reglas de análisis:
1. 'valid': true si es manga/anime/manhwa/manhua. false si es una foto real, texto o algo no relacionado.
2. 'title': Identifica el nombre oficial de la obra (ej: "Berserk", "Solo Leveling"). Si no es una obra conocida, inventa un título poético en Español.
3. 'format': Clasifica exactamente como "Manga" (Japonés), "Manhwa" (Coreano), "Manhua" (Chino) o "Anime Art" (Ilustración a color).
4. 'demographic': Clasifica como "Shonen", "Shojo", "Seinen", "Josei", "Kodomomuke" o "N/A".
5. 'genres': Un array de 3 a 6 géneros (ej: Acción, Slice of Life, Horror, Cyberpunk, Fantasía Oscura).
6. 'description': Una descripción evocadora y didáctica en español de lo que sucede en la imagen, enfocándose en la composición y el sentimiento.
7. 'score': Un número del 1 al 10 (acepta decimales, ej: 8.5). Basado en la calidad del arte, la composición y (si reconoces la obra) la popularidad crítica general. Sé estricto pero justo.
8. 'error_message': Si valid es false, explica cortésmente por qué en español.

Response schema example:
{
  "valid": true,
  "title": "Berserk",
  "format": "Manga",
  "demographic": "Seinen",
  "genres": ["Psychological", "Horror"],
  "description": "Texto detallado...",
  "score": 9.5
}`

type geminiAnalyzer struct {
	apiKey  string
	model   string
	baseURL string
	logger  *utils.Logger
	client  *http.Client
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func NewGeminiAnalyzer(apiKey, model string, logger *utils.Logger) Analyzer {
	return &geminiAnalyzer{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		logger:  logger,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *geminiAnalyzer) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*models.AnalysisData, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Parts: []geminiPart{
					{
						InlineData: &geminiInlineData{
							MimeType: mimeType,
							Data:     base64.StdEncoding.EncodeToString(image),
						},
					},
					{Text: classificationPrompt},
				},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &AnalysisError{Kind: FailureTransport, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &AnalysisError{Kind: FailureTransport, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &AnalysisError{Kind: FailureTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AnalysisError{Kind: FailureTransport, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	var geminiResp geminiResponse
	if resp.StatusCode != http.StatusOK {
		a.logger.Error("Gemini API error", "status", resp.StatusCode, "body", string(body))
		if err := json.Unmarshal(body, &geminiResp); err == nil && geminiResp.Error != nil {
			return nil, &AnalysisError{Kind: FailureTransport, Message: geminiResp.Error.Message}
		}
		return nil, &AnalysisError{Kind: FailureTransport, Message: fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, &AnalysisError{Kind: FailureInvalidResponse, Message: MsgInvalidResponse}
	}

	text := candidateText(&geminiResp)
	if text == "" {
		return nil, &AnalysisError{Kind: FailureEmptyResponse, Message: MsgEmptyResponse}
	}

	data, err := Normalize(text)
	if err != nil {
		if FailureKindOf(err) == FailureInvalidResponse {
			a.logger.Error("Failed to parse model response", "content", text)
		}
		return nil, err
	}

	return data, nil
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}
