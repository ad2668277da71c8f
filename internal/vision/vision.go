package vision

import (
	"context"
	"fmt"
	"io"

	"github.com/vbonduro/bloom/internal/domain"
)

// IdentifyPrompt is the shared prompt used by all vision adapters.
const IdentifyPrompt = `Identify this object in the image. It could be a plant, flower, or insect.

Provide your response in the following format:
NAME: [The formal name of the object]
FACT: [A fun, interesting two-sentence fact about it]

Be concise and engaging. The fact should be educational but entertaining.`

// FactPrompt asks for a fresh fun fact about an already identified subject.
func FactPrompt(name string) string {
	return fmt.Sprintf(`Generate a fun, interesting two-sentence fact about %s.
Make it educational but entertaining. Different from common facts.`, name)
}

// Identifier names the plant, flower or insect in an image and returns a fun
// fact about it. A single attempt is made per call.
type Identifier interface {
	Identify(ctx context.Context, r io.Reader, mimeType string) (*domain.Identification, error)
}

// FactGenerator is an optional extension of Identifier that produces a new
// fun fact for a subject without an image.
type FactGenerator interface {
	GenerateFact(ctx context.Context, name string) (string, error)
}

// Error wraps a failure talking to a model backend. Its message carries the
// underlying cause so it can be shown to the user as-is.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return "failed to identify: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err as an *Error for backend, leaving nil and parse errors
// untouched.
func Wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	if IsParseError(err) {
		return err
	}
	return &Error{Backend: backend, Err: err}
}
