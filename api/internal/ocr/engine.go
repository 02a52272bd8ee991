package ocr

import "context"

type Recognition struct {
	Text       string
	Confidence float64
}

// Recognizer turns one processed image into text. Implementations may return
// empty text on failure but must honour ctx.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (Recognition, error)
}

// Preprocessor renders a named variant of the image. It must not fail:
// on any internal error the original bytes are returned.
type Preprocessor interface {
	Variants() []string
	Apply(variant string, img []byte) []byte
}

// VisionTranscriber reads the original image with a vision-capable model.
type VisionTranscriber interface {
	Name() string
	Transcribe(ctx context.Context, img Image) (string, error)
}
