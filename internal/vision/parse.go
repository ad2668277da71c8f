package vision

import (
	"errors"
	"strings"

	"github.com/vbonduro/bloom/internal/domain"
)

var (
	ErrEmptyResponse = errors.New("empty response from model")
	ErrNameMissing   = errors.New("failed to parse name from model response")
	ErrFactMissing   = errors.New("failed to parse fact from model response")
)

const (
	namePrefix = "NAME:"
	factPrefix = "FACT:"
)

// ParseIdentification extracts the NAME: and FACT: lines from a model
// response. Prefixes match case-insensitively, the first occurrence of each
// wins and every other line is ignored. A fact spanning several lines keeps
// only its first line.
func ParseIdentification(raw string) (*domain.Identification, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	var name, fact string
	var haveName, haveFact bool
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !haveName {
			if v, ok := cutPrefixFold(line, namePrefix); ok {
				name, haveName = v, true
				continue
			}
		}
		if !haveFact {
			if v, ok := cutPrefixFold(line, factPrefix); ok {
				fact, haveFact = v, true
			}
		}
	}

	if name == "" {
		return nil, ErrNameMissing
	}
	if fact == "" {
		return nil, ErrFactMissing
	}
	return &domain.Identification{Name: name, FunFact: fact}, nil
}

// ParseFact cleans up a free-form fact response.
func ParseFact(raw string) (string, error) {
	fact := strings.TrimSpace(raw)
	if fact == "" {
		return "", ErrEmptyResponse
	}
	if v, ok := cutPrefixFold(fact, factPrefix); ok && v != "" {
		return v, nil
	}
	return fact, nil
}

func cutPrefixFold(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

// IsParseError reports whether err means the model answered in an
// unexpected format.
func IsParseError(err error) bool {
	return errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrNameMissing) || errors.Is(err, ErrFactMissing)
}
