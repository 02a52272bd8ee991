package ocr

import "errors"

var (
	errNoVision = errors.New("no vision transcriber configured")

	// ErrNoImage is returned by Service.Run for an empty upload.
	ErrNoImage = errors.New("ocr: empty image")
)
