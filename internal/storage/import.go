package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const savedPromptSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "title", "prompt", "model"],
  "properties": {
    "id":             {"type": "string", "minLength": 1},
    "title":          {"type": "string", "minLength": 1},
    "prompt":         {"type": "string", "minLength": 1},
    "model":          {"type": "string", "minLength": 1},
    "negativePrompt": {"type": "string"},
    "categories": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"}
  }
}`

var compiledPromptSchema = jsonschema.MustCompileString("saved_prompt.json", savedPromptSchema)

// DecodeImport reads a JSON array of saved prompts. Elements that do not
// match the saved-prompt shape are dropped individually and counted.
func DecodeImport(raw []byte) ([]models.SavedPrompt, int, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, 0, fmt.Errorf("%w: import file must be a JSON array: %v", ErrInvalid, err)
	}

	records := make([]models.SavedPrompt, 0, len(elements))
	dropped := 0
	for i, element := range elements {
		var doc any
		if err := json.NewDecoder(bytes.NewReader(element)).Decode(&doc); err != nil {
			dropped++
			continue
		}
		if err := compiledPromptSchema.Validate(doc); err != nil {
			slog.Debug("dropping invalid import entry", "index", i, "err", err)
			dropped++
			continue
		}

		var p models.SavedPrompt
		if err := json.Unmarshal(element, &p); err != nil {
			dropped++
			continue
		}
		records = append(records, p)
	}
	return records, dropped, nil
}
