// Package backend defines the generation capabilities the pipeline consumes
// and ships adapters for the image and speech services it talks to.
//
// Every adapter honours the same file contract: on success exactly one
// complete asset exists at the target path; on failure nothing is left
// there.
package backend

import (
	"context"
	"fmt"
)

// Size is a target image size in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, targetPath string, size Size) error
	// ImageFormat is the file extension, without a dot, of produced images.
	ImageFormat() string
}

type SpeechSynthesizer interface {
	GenerateSpeech(ctx context.Context, text, targetPath string) error
	// SpeechFormat is the file extension, without a dot, of produced audio.
	SpeechFormat() string
}

// Backend is the full capability set the orchestrator drives.
type Backend interface {
	ImageGenerator
	SpeechSynthesizer
}

type combined struct {
	ImageGenerator
	SpeechSynthesizer
}

// Combine pairs independent image and speech adapters into one Backend.
func Combine(images ImageGenerator, speech SpeechSynthesizer) Backend {
	return combined{ImageGenerator: images, SpeechSynthesizer: speech}
}
