// Package providers defines the interfaces behind which the external model
// services sit. Every network-calling component depends on these, never on
// a concrete client, so tests can substitute fakes.
package providers

import (
	"context"
	"errors"
)

// ErrOverloaded classifies the "service overloaded" error class (HTTP 529
// and friends). It is the only error class the story generator retries.
var ErrOverloaded = errors.New("model service overloaded")

// IsOverloaded reports whether err belongs to the overload class.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// TextRequest is a single text-generation call.
type TextRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// TextProvider generates free-form text from a prompt.
type TextProvider interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// VisionRequest asks a vision-capable model to describe an image.
type VisionRequest struct {
	Model     string
	Prompt    string
	Image     []byte
	MIMEType  string
	MaxTokens int
}

// VisionProvider extracts a textual description from an image.
type VisionProvider interface {
	DescribeImage(ctx context.Context, req VisionRequest) (string, error)
}

// ImageRequest is a single image generation or edit call. Reference is the
// anchor image for edit calls and ignored by plain generation.
type ImageRequest struct {
	Model     string
	Prompt    string
	Size      string
	Reference []byte
}

// ImageProvider renders illustrations. GenerateImage is plain
// text-to-image; EditImage transforms the reference image according to the
// prompt, preserving the depicted character.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
	EditImage(ctx context.Context, req ImageRequest) ([]byte, error)
}
