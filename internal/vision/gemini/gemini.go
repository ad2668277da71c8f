package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/vision"
)

const backendName = "gemini"

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type request struct {
	Contents []content `json:"contents"`
}

// GeminiIdentifier calls the Generative Language generateContent endpoint.
type GeminiIdentifier struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiIdentifier(apiKey, model string) *GeminiIdentifier {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiIdentifier{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
}

func (g *GeminiIdentifier) Identify(ctx context.Context, r io.Reader, mimeType string) (*domain.Identification, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, vision.Wrap(backendName, fmt.Errorf("failed to read image: %w", err))
	}

	text, err := g.generate(ctx, []part{
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(imageData)}},
		{Text: vision.IdentifyPrompt},
	})
	if err != nil {
		return nil, vision.Wrap(backendName, err)
	}

	return vision.ParseIdentification(text)
}

func (g *GeminiIdentifier) GenerateFact(ctx context.Context, name string) (string, error) {
	text, err := g.generate(ctx, []part{{Text: vision.FactPrompt(name)}})
	if err != nil {
		return "", vision.Wrap(backendName, err)
	}
	return vision.ParseFact(text)
}

func (g *GeminiIdentifier) generate(ctx context.Context, parts []part) (string, error) {
	payload, err := json.Marshal(request{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// The request URL carries the key; report only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close gemini response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, msg.String())
		}
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	if reason := gjson.GetBytes(body, "promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("gemini blocked the prompt: %s", reason.String())
	}

	var text string
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		text += p.Get("text").String()
		return true
	})
	return text, nil
}
