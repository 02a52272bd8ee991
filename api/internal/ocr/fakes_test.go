package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeVision struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeVision) Name() string { return "fake" }

func (f *fakeVision) Transcribe(ctx context.Context, _ Image) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type stubPreprocessor struct{ variants []string }

func (s stubPreprocessor) Variants() []string { return s.variants }

// Apply tags the payload with the variant so the recognizer can tell passes apart.
func (s stubPreprocessor) Apply(variant string, img []byte) []byte {
	return append([]byte(variant+":"), img...)
}

type scriptedRecognizer struct {
	mu       sync.Mutex
	byPrefix map[string]Recognition
	fail     map[string]error
	panics   map[string]bool
	block    map[string]bool
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	variant := string(img)
	for i := range img {
		if img[i] == ':' {
			variant = string(img[:i])
			break
		}
	}
	r.mu.Lock()
	rec, err, boom, wait := r.byPrefix[variant], r.fail[variant], r.panics[variant], r.block[variant]
	r.mu.Unlock()

	if boom {
		panic("tesseract crashed")
	}
	if wait {
		<-ctx.Done()
		return Recognition{}, ctx.Err()
	}
	return rec, err
}

var errRecognize = errors.New("recognizer failed")
