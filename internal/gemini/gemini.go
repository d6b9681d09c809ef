package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/promptsmith/sdprompt/internal/providers"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const address = "generativelanguage.googleapis.com"

// Gemini is a provider for Google Gemini. Seeds are not supported upstream
// and are dropped.
type Gemini struct {
	apiKey string
}

// New returns a new Gemini provider
func New(apiKey string) *Gemini {
	return &Gemini{apiKey: apiKey}
}

// Address returns the Gemini API host
func (g *Gemini) Address() string {
	return address
}

func (g *Gemini) client(ctx context.Context) (*genai.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, &providers.UnreachableError{Address: address, Err: err}
	}
	return client, nil
}

// Generate runs one generation and wraps the text in an Ollama-shaped body
func (g *Gemini) Generate(ctx context.Context, req providers.Request) (json.RawMessage, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	applyOptions(model, req)

	parts := []genai.Part{}
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
		}
		parts = append(parts, genai.ImageData(imageFormat(data), data))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to generate content: %w", err))
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty content returned from Gemini")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}

	return json.Marshal(providers.GenerateResponse{
		Model:    req.Model,
		Response: text.String(),
		Done:     true,
	})
}

// ListModels lists the models available to the API key
func (g *Gemini) ListModels(ctx context.Context) (json.RawMessage, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	list := providers.ModelList{Models: []providers.Model{}}
	iter := client.ListModels(ctx)
	for {
		info, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyError(err)
		}
		list.Models = append(list.Models, providers.Model{
			Name: strings.TrimPrefix(info.Name, "models/"),
		})
	}

	return json.Marshal(list)
}

// grpcStatus maps gRPC codes the API answers with to HTTP status codes.
var grpcStatus = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
}

// classifyError turns an API answer carrying a status into an
// UpstreamError. Anything else, including gRPC Unavailable and deadline
// errors, means the API was not reached.
func classifyError(err error) error {
	var httpErr *googleapi.Error
	if errors.As(err, &httpErr) && httpErr.Code > 0 {
		body := httpErr.Body
		if body == "" {
			body = httpErr.Message
		}
		return &providers.UpstreamError{
			StatusCode: httpErr.Code,
			Status:     http.StatusText(httpErr.Code),
			Body:       body,
		}
	}

	apiErr, ok := apierror.FromError(err)
	if ok {
		if code := apiErr.HTTPCode(); code > 0 {
			return &providers.UpstreamError{StatusCode: code, Status: http.StatusText(code), Body: apiErr.Error()}
		}
		if st := apiErr.GRPCStatus(); st != nil {
			if code, known := grpcStatus[st.Code()]; known {
				return &providers.UpstreamError{StatusCode: code, Status: http.StatusText(code), Body: st.Message()}
			}
		}
	}

	return &providers.UnreachableError{Address: address, Err: err}
}

func applyOptions(model *genai.GenerativeModel, req providers.Request) {
	opts := req.Options
	if opts.Temperature != nil {
		model.SetTemperature(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		model.SetTopP(float32(*opts.TopP))
	}
	if opts.TopK != nil {
		model.SetTopK(int32(*opts.TopK))
	}
	if opts.NumPredict != nil {
		model.SetMaxOutputTokens(int32(*opts.NumPredict))
	}
	if len(opts.Stop) > 0 {
		model.StopSequences = opts.Stop
	}

	system := req.System
	if system == "" && opts.System != nil {
		system = *opts.System
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.Format == "json" {
		model.ResponseMIMEType = "application/json"
	}
}

// imageFormat maps sniffed content to the short format genai.ImageData wants
func imageFormat(data []byte) string {
	mime := http.DetectContentType(data)
	if format, ok := strings.CutPrefix(mime, "image/"); ok {
		return format
	}
	return "jpeg"
}
