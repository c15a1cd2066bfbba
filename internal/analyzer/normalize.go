package analyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mangakantei/manga-kantei-api/internal/models"
)

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9]*\n?")
	fenceClose = regexp.MustCompile("```$")
)

// Normalize turns raw model output into a validated AnalysisData or a typed
// failure. Models wrap their JSON in markdown fences or surround it with
// prose often enough that every response goes through the same cleanup:
// strip fences, then slice to the outermost braces, then parse.
func Normalize(raw string) (*models.AnalysisData, error) {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
	}

	text = strings.TrimSpace(text)

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last != -1 && last > first {
		text = text[first : last+1]
	}

	var data models.AnalysisData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, &AnalysisError{Kind: FailureInvalidResponse, Message: MsgInvalidResponse}
	}

	if !data.Valid {
		msg := data.ErrorMessage
		if msg == "" {
			msg = MsgInvalidDomain
		}
		return nil, &AnalysisError{Kind: FailureInvalidDomain, Message: msg}
	}

	return &data, nil
}
