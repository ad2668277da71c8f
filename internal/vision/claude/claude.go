package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/vision"
)

const backendName = "claude"

const defaultBaseURL = "https://api.anthropic.com/v1"

// maxTokens is well above a NAME/FACT answer of two short lines.
const maxTokens = 512

type ClaudeIdentifier struct {
	apiKey  string
	model   string
	baseURL string
}

func NewClaudeIdentifier(apiKey, model string) *ClaudeIdentifier {
	return &ClaudeIdentifier{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
	}
}

func (a *ClaudeIdentifier) client() *anthropic.Client {
	return anthropic.NewClient(a.apiKey, anthropic.WithBaseURL(a.baseURL))
}

func (a *ClaudeIdentifier) Identify(ctx context.Context, r io.Reader, mimeType string) (*domain.Identification, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, vision.Wrap(backendName, fmt.Errorf("failed to read image: %w", err))
	}

	text, err := a.complete(ctx, []anthropic.MessageContent{
		anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
			anthropic.MessagesContentSourceTypeBase64,
			normaliseMIME(mimeType),
			base64.StdEncoding.EncodeToString(imageData),
		)),
		anthropic.NewTextMessageContent(vision.IdentifyPrompt),
	})
	if err != nil {
		return nil, vision.Wrap(backendName, err)
	}

	return vision.ParseIdentification(text)
}

func (a *ClaudeIdentifier) GenerateFact(ctx context.Context, name string) (string, error) {
	text, err := a.complete(ctx, []anthropic.MessageContent{
		anthropic.NewTextMessageContent(vision.FactPrompt(name)),
	})
	if err != nil {
		return "", vision.Wrap(backendName, err)
	}
	return vision.ParseFact(text)
}

func (a *ClaudeIdentifier) complete(ctx context.Context, content []anthropic.MessageContent) (string, error) {
	resp, err := a.client().CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: content,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	var sb strings.Builder
	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText {
			sb.WriteString(blk.GetText())
		}
	}
	return sb.String(), nil
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// Unknown types are coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
