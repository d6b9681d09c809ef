package analysis

import (
	"regexp"
	"strings"

	"github.com/promptsmith/sdprompt/internal/models"
)

// Fallbacks used when a section cannot be located in the model output.
const (
	FallbackComposition = "Composition analysis not available"
	FallbackLighting    = "Lighting analysis not available"
	FallbackColors      = "Color analysis not available"
	FallbackStyle       = "Style analysis not available"
)

type field int

const (
	fieldComposition field = iota
	fieldLighting
	fieldColors
	fieldStyle
	fieldSuggestedPrompt
	numFields
)

// labelToken matches a labelled section header such as "Lighting:" or
// "**Lighting**:". Emphasis around the label belongs to the header.
var labelToken = regexp.MustCompile(`(?i)(?:[*_]+|\b)(composition|lighting|colou?rs|style|suggested\s+prompt)[*_]*\s*:`)

// bareLabels match a section name without its colon, tried only when no
// labelled header exists for that field.
var bareLabels = [numFields]*regexp.Regexp{
	fieldComposition:     regexp.MustCompile(`(?i)\bcomposition\b`),
	fieldLighting:        regexp.MustCompile(`(?i)\blighting\b`),
	fieldColors:          regexp.MustCompile(`(?i)\bcolou?rs\b`),
	fieldStyle:           regexp.MustCompile(`(?i)\bstyle\b`),
	fieldSuggestedPrompt: regexp.MustCompile(`(?i)\bsuggested\s+prompt\b`),
}

var trailingEnumerator = regexp.MustCompile(`\n\s*\d+[.)]$`)

type token struct {
	field      field
	start, end int
}

// Parse extracts the five analysis sections from free text. Sections may
// appear in any order; each capture runs until the soonest header of a
// different section or the end of the input. Missing sections degrade to
// fixed placeholders and the suggested prompt degrades to the whole input.
func Parse(text string) models.AnalysisResult {
	tokens := scanTokens(text)

	var values [numFields]string
	for f := field(0); f < numFields; f++ {
		values[f] = capture(text, tokens, f)
	}

	result := models.AnalysisResult{
		Composition:     orDefault(values[fieldComposition], FallbackComposition),
		Lighting:        orDefault(values[fieldLighting], FallbackLighting),
		Colors:          orDefault(values[fieldColors], FallbackColors),
		Style:           orDefault(values[fieldStyle], FallbackStyle),
		SuggestedPrompt: orDefault(values[fieldSuggestedPrompt], strings.TrimSpace(text)),
	}
	return result
}

func scanTokens(text string) []token {
	matches := labelToken.FindAllStringSubmatchIndex(text, -1)
	tokens := make([]token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, token{
			field: fieldFor(text[m[2]:m[3]]),
			start: m[0],
			end:   m[1],
		})
	}
	return tokens
}

func capture(text string, tokens []token, f field) string {
	start := -1
	for _, tok := range tokens {
		if tok.field == f {
			start = tok.end
			break
		}
	}
	if start == -1 {
		loc := bareLabels[f].FindStringIndex(text)
		if loc == nil {
			return ""
		}
		start = loc[1]
	}

	end := len(text)
	for _, tok := range tokens {
		if tok.field != f && tok.start >= start {
			end = tok.start
			break
		}
	}

	return clean(text[start:end])
}

func clean(s string) string {
	s = strings.Trim(s, " \t\r\n*-#:")
	s = trailingEnumerator.ReplaceAllString(s, "")
	return strings.Trim(s, " \t\r\n*-#")
}

func fieldFor(label string) field {
	label = strings.ToLower(label)
	switch {
	case label == "composition":
		return fieldComposition
	case label == "lighting":
		return fieldLighting
	case strings.HasPrefix(label, "colo"):
		return fieldColors
	case label == "style":
		return fieldStyle
	default:
		return fieldSuggestedPrompt
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
