package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "composition":     {"type": "string"},
    "lighting":        {"type": "string"},
    "colors":          {"type": "string"},
    "style":           {"type": "string"},
    "suggestedPrompt": {"type": "string", "minLength": 1}
  },
  "required": ["suggestedPrompt"]
}`

var compiledResultSchema = jsonschema.MustCompileString("analysis_result.json", resultSchema)

// keyAliases maps normalized JSON keys onto result keys.
var keyAliases = map[string]string{
	"composition":     "composition",
	"lighting":        "lighting",
	"colors":          "colors",
	"colours":         "colors",
	"color":           "colors",
	"colorpalette":    "colors",
	"style":           "style",
	"suggestedprompt": "suggestedPrompt",
	"prompt":          "suggestedPrompt",
	"sdprompt":        "suggestedPrompt",
}

// Extract prefers a JSON object in the model output and falls back to the
// labelled-section heuristic. The boolean reports whether JSON was used.
func Extract(text string) (models.AnalysisResult, bool) {
	result, err := ParseStructured(text)
	if err != nil {
		return Parse(text), false
	}
	return result, true
}

// ParseStructured decodes a JSON analysis object from model output. Code
// fences and prose around the object are tolerated. Sections missing from a
// valid object get the same placeholders as Parse.
func ParseStructured(text string) (models.AnalysisResult, error) {
	candidate := jsonCandidate(text)
	if candidate == "" {
		return models.AnalysisResult{}, fmt.Errorf("no JSON object in response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to decode analysis JSON: %w", err)
	}

	normalized := normalize(raw)
	if err := compiledResultSchema.Validate(normalized); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analysis JSON failed validation: %w", err)
	}

	get := func(key string) string {
		s, _ := normalized[key].(string)
		return strings.TrimSpace(s)
	}

	return models.AnalysisResult{
		Composition:     orDefault(get("composition"), FallbackComposition),
		Lighting:        orDefault(get("lighting"), FallbackLighting),
		Colors:          orDefault(get("colors"), FallbackColors),
		Style:           orDefault(get("style"), FallbackStyle),
		SuggestedPrompt: get("suggestedPrompt"),
	}, nil
}

// normalize folds key spelling variants and flattens string lists, which
// models commonly return for colors.
func normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		folded := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(key))
		canonical, ok := keyAliases[folded]
		if !ok {
			continue
		}
		if _, seen := out[canonical]; seen {
			continue
		}
		if list, isList := value.([]any); isList {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				if s, isString := item.(string); isString {
					parts = append(parts, s)
				}
			}
			value = strings.Join(parts, ", ")
		}
		out[canonical] = value
	}
	return out
}

func jsonCandidate(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
