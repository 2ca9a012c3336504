package room

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CodeAlphabet leaves out characters that are easy to misread aloud or on a
// projector: 0/O, 1/I.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	MinCodeLength = 4
	MaxCodeLength = 12
)

// codeAttempts bounds collision retries before giving up.
const codeAttempts = 32

// CodeGenerator produces room codes.
type CodeGenerator struct {
	size int
}

// NewCodeGenerator creates a generator for codes of the given length.
func NewCodeGenerator(size int) (*CodeGenerator, error) {
	if size < MinCodeLength || size > MaxCodeLength {
		return nil, fmt.Errorf("room code length must be between %d and %d, got %d", MinCodeLength, MaxCodeLength, size)
	}
	return &CodeGenerator{size: size}, nil
}

// Generate returns a random code. Uniqueness is the caller's concern.
func (g *CodeGenerator) Generate() (string, error) {
	code, err := gonanoid.Generate(CodeAlphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	return code, nil
}

// NormalizeCode canonicalizes a user-typed code. Codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code could have been generated.
func ValidCode(code string) bool {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return false
		}
	}
	return true
}
