package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/vision"
)

const backendName = "ollama"

type OllamaIdentifier struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaIdentifier(host, model string) *OllamaIdentifier {
	return &OllamaIdentifier{
		host:   host,
		model:  model,
		client: &http.Client{},
	}
}

func (a *OllamaIdentifier) Identify(ctx context.Context, r io.Reader, mimeType string) (*domain.Identification, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, vision.Wrap(backendName, fmt.Errorf("failed to read image: %w", err))
	}

	text, err := a.generate(ctx, vision.IdentifyPrompt, base64.StdEncoding.EncodeToString(imageData))
	if err != nil {
		return nil, vision.Wrap(backendName, err)
	}
	return vision.ParseIdentification(text)
}

func (a *OllamaIdentifier) GenerateFact(ctx context.Context, name string) (string, error) {
	text, err := a.generate(ctx, vision.FactPrompt(name))
	if err != nil {
		return "", vision.Wrap(backendName, err)
	}
	return vision.ParseFact(text)
}

func (a *OllamaIdentifier) generate(ctx context.Context, prompt string, images ...string) (string, error) {
	reqBody := map[string]interface{}{
		"model":  a.model,
		"prompt": prompt,
		"stream": false,
	}
	if len(images) > 0 {
		reqBody["images"] = images
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return respBody.Response, nil
}
