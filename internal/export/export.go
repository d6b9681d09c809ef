package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/storage"
	"gopkg.in/yaml.v3"
)

// Format is a saved-prompt file format
type Format string

const (
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatYAML    Format = "yaml"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "", "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ContentType is the HTTP media type of a format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatYAML:
		return "application/yaml"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/json"
	}
}

// Filename is the download name for an export taken at t.
func Filename(f Format, t time.Time) string {
	return fmt.Sprintf("sd-prompts-%s.%s", t.Format("2006-01-02"), f)
}

// Marshal encodes the collection. An empty collection is an error.
func Marshal(f Format, prompts []models.SavedPrompt) ([]byte, error) {
	if len(prompts) == 0 {
		return nil, storage.ErrEmptyCollection
	}

	var buf bytes.Buffer
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(prompts); err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(&buf)
		for _, p := range prompts {
			if err := enc.Encode(p); err != nil {
				return nil, fmt.Errorf("failed to encode JSONL line: %w", err)
			}
		}
	case FormatYAML:
		data, err := yaml.Marshal(prompts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		buf.Write(data)
	case FormatParquet:
		if err := writeParquet(&buf, prompts); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported export format: %s", f)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a collection. JSON input goes through
// storage.DecodeImport so invalid elements are dropped individually; the
// second return value counts them.
func Unmarshal(f Format, data []byte) ([]models.SavedPrompt, int, error) {
	switch f {
	case FormatJSON:
		return storage.DecodeImport(data)
	case FormatJSONL:
		return readJSONL(data)
	case FormatYAML:
		var prompts []models.SavedPrompt
		if err := yaml.Unmarshal(data, &prompts); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
		return prompts, 0, nil
	case FormatParquet:
		prompts, err := readParquet(bytes.NewReader(data), int64(len(data)))
		return prompts, 0, err
	default:
		return nil, 0, fmt.Errorf("unsupported import format: %s", f)
	}
}

// WriteFile exports to path in the format matching its extension.
func WriteFile(path string, prompts []models.SavedPrompt) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(f, prompts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	slog.Info("exported saved prompts", "path", path, "format", f, "count", len(prompts))
	return nil
}

// ReadFile imports from path in the format matching its extension.
func ReadFile(path string) ([]models.SavedPrompt, int, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read import file: %w", err)
	}
	return Unmarshal(f, data)
}

func readJSONL(data []byte) ([]models.SavedPrompt, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	var (
		prompts []models.SavedPrompt
		dropped int
		lineNum int
	)
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p models.SavedPrompt
		if err := json.Unmarshal(line, &p); err != nil {
			slog.Warn("skipping malformed JSONL line", "line", lineNum, "err", err)
			dropped++
			continue
		}
		prompts = append(prompts, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to scan JSONL: %w", err)
	}
	return prompts, dropped, nil
}

// parquetRow flattens a SavedPrompt; categories are stored as a JSON string
type parquetRow struct {
	ID             string `parquet:"id"`
	Title          string `parquet:"title"`
	Prompt         string `parquet:"prompt"`
	NegativePrompt string `parquet:"negative_prompt"`
	Model          string `parquet:"model"`
	Categories     string `parquet:"categories"`
	CreatedAt      string `parquet:"created_at"`
	UpdatedAt      string `parquet:"updated_at"`
	Version        int64  `parquet:"version"`
}

func writeParquet(w io.Writer, prompts []models.SavedPrompt) error {
	rows := make([]parquetRow, 0, len(prompts))
	for _, p := range prompts {
		categories, err := json.Marshal(p.Categories)
		if err != nil {
			return fmt.Errorf("failed to encode categories of %s: %w", p.ID, err)
		}
		rows = append(rows, parquetRow{
			ID:             p.ID,
			Title:          p.Title,
			Prompt:         p.Prompt,
			NegativePrompt: p.NegativePrompt,
			Model:          string(p.Model),
			Categories:     string(categories),
			CreatedAt:      p.CreatedAt,
			UpdatedAt:      p.UpdatedAt,
			Version:        p.Version,
		})
	}

	writer := parquet.NewGenericWriter[parquetRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func readParquet(r io.ReaderAt, size int64) ([]models.SavedPrompt, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[parquetRow](pf)
	defer reader.Close()

	var prompts []models.SavedPrompt
	rows := make([]parquetRow, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			p := models.SavedPrompt{
				ID:             row.ID,
				Title:          row.Title,
				Prompt:         row.Prompt,
				NegativePrompt: row.NegativePrompt,
				Model:          models.SDModel(row.Model),
				CreatedAt:      row.CreatedAt,
				UpdatedAt:      row.UpdatedAt,
				Version:        row.Version,
			}
			if row.Categories != "" {
				if err := json.Unmarshal([]byte(row.Categories), &p.Categories); err != nil {
					return nil, fmt.Errorf("failed to decode categories of %s: %w", row.ID, err)
				}
			}
			prompts = append(prompts, p)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("read parquet prompts", "rows", len(prompts))
	return prompts, nil
}
