package telegram

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medmap/api/internal/logger"
	"medmap/api/internal/ocr"
	"medmap/api/internal/pipeline"
)

var httpc = &http.Client{Timeout: 60 * time.Second}

func (r *Router) acceptPhoto(ctx context.Context, msg tgbotapi.Message) {
	ph := msg.Photo[len(msg.Photo)-1] // largest size
	r.acceptImage(ctx, msg, ph.FileID)
}

func (r *Router) acceptDocument(ctx context.Context, msg tgbotapi.Message) {
	r.acceptImage(ctx, msg, msg.Document.FileID)
}

// acceptImage buffers photos of one media group (or one chat) for the
// debounce window so a multi-page prescription is read as one image.
func (r *Router) acceptImage(ctx context.Context, msg tgbotapi.Message, fileID string) {
	cid := msg.Chat.ID
	img, err := r.fetch(ctx, fileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}

	key := fmt.Sprintf("chat:%d", cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}
	first := r.state.addPhoto(key, cid, img, func() { r.processBatch(ctx, key) })
	if first {
		r.send(cid, "Photo received, reading the prescription…")
	}
}

func (r *Router) processBatch(ctx context.Context, key string) {
	b, ok := r.state.takeBatch(key)
	if !ok || len(b.images) == 0 {
		return
	}
	merged, err := combineAsOne(b.images)
	if err != nil {
		logger.WithContext(ctx).Warn("telegram: merge photos", "images", len(b.images), "err", err)
		r.SendError(b.chatID, fmt.Errorf("merge photos: %w", err))
		return
	}
	r.run(ctx, b.chatID, pipeline.Request{Image: ocr.Image{Data: merged}})
}

func (r *Router) fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	return download(ctx, url)
}

// combineAsOne stacks images vertically on a white canvas, centred, and
// scales the result down to maxPixels. A single image is returned as is.
func combineAsOne(images [][]byte) ([]byte, error) {
	if len(images) == 1 {
		return images[0], nil
	}
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		maxW = max(maxW, img.Bounds().Dx())
		sumH += img.Bounds().Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, fmt.Errorf("empty images")
	}

	canvas := imaging.New(maxW, sumH, color.White)
	y := 0
	for _, img := range decoded {
		x := (maxW - img.Bounds().Dx()) / 2
		canvas = imaging.Paste(canvas, img, image.Pt(x, y))
		y += img.Bounds().Dy()
	}

	final := canvas
	if total := maxW * sumH; total > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(total))
		w := max(1, int(float64(maxW)*scale+0.5))
		h := max(1, int(float64(sumH)*scale+0.5))
		final = imaging.Resize(canvas, w, h, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, final, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download: status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
