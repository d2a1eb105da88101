package categorize

import (
	"encoding/json"
	"strings"
)

// classifierResponse is the strict shape the backend must answer with.
type classifierResponse struct {
	CategoryID  string  `json:"category_id"`
	Confidence  float64 `json:"confidence"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
}

// parseResponse turns raw model output into a validated response. ok is
// false when the text cannot be parsed into the expected shape at all; the
// caller then falls back to the catch-all category.
func parseResponse(raw string) (classifierResponse, bool) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return classifierResponse{}, false
	}

	var resp classifierResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return classifierResponse{}, false
	}
	if strings.TrimSpace(resp.CategoryID) == "" {
		return classifierResponse{}, false
	}

	resp.CategoryID = strings.TrimSpace(resp.CategoryID)
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	return resp, true
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite instructions, keeping only the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
