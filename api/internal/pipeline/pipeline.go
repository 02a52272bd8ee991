// Package pipeline runs one prescription through OCR, extraction, matching
// and the audit log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medmap/api/internal/extract"
	"medmap/api/internal/logger"
	"medmap/api/internal/match"
	"medmap/api/internal/metrics"
	"medmap/api/internal/ocr"
	"medmap/api/internal/store"
)

var ErrMissingInput = errors.New(`either "image" (base64) or "raw_text" must be provided`)

const (
	StatusSuccess = "success"

	NoMedicinesMessage = "No medicine entities detected in the prescription."

	auditTimeout = 5 * time.Second
)

type OCR interface {
	Run(ctx context.Context, img ocr.Image, opts ocr.Options) (ocr.Outcome, error)
}

type Matcher interface {
	MatchAll(ctx context.Context, mentions []match.Mention) ([]match.Outcome, error)
}

type AuditLog interface {
	Insert(ctx context.Context, e store.ExtractionLog) error
}

// OCRCache returns an error (usually sql.ErrNoRows) on a miss.
type OCRCache interface {
	Find(ctx context.Context, imageHash string, passes, minConsensus int, maxAge time.Duration) (ocr.Outcome, error)
	Upsert(ctx context.Context, imageHash string, passes, minConsensus int, o ocr.Outcome) error
}

type Request struct {
	Image   ocr.Image
	RawText string
	Options ocr.Options
}

type Result struct {
	Status           string          `json:"status"`
	SessionID        uuid.UUID       `json:"session_id"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	OCR              ocr.Outcome     `json:"ocr_result"`
	Medicines        []match.Outcome `json:"extracted_medicines"`
	Message          string          `json:"message,omitempty"`
}

type Service struct {
	OCR       OCR
	Extractor extract.Extractor
	Matcher   Matcher
	Audit     AuditLog // optional
	Cache     OCRCache // optional
	CacheTTL  time.Duration
	Defaults  ocr.Options
	Metrics   *metrics.Recorder

	now func() time.Time
}

// Process handles one request. An image wins over raw text when both are set.
func (s *Service) Process(ctx context.Context, req Request) (Result, error) {
	start := s.clock()
	text := strings.TrimSpace(req.RawText)
	if len(req.Image.Data) == 0 && text == "" {
		return Result{}, ErrMissingInput
	}

	session := uuid.New()
	ctx = logger.WithSessionID(ctx, session.String())
	log := logger.WithContext(ctx)

	input := store.InputText
	var (
		out ocr.Outcome
		err error
	)
	if len(req.Image.Data) > 0 {
		input = store.InputImage
		out, err = s.recognize(ctx, req.Image, s.options(req.Options))
		if err != nil {
			return Result{}, fmt.Errorf("ocr: %w", err)
		}
	} else {
		out = ocr.RawText(text)
	}
	log.Info("ocr done", "input", input, "quality", out.QualityTag, "score", out.ConsensusScore, "fallback", out.FallbackUsed)

	mentions, err := s.Extractor.Extract(ctx, out.FinalText)
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	res := Result{Status: StatusSuccess, SessionID: session, OCR: out, Medicines: []match.Outcome{}}
	if len(mentions) == 0 {
		res.Message = NoMedicinesMessage
	} else {
		res.Medicines, err = s.Matcher.MatchAll(ctx, mentions)
		if err != nil {
			return Result{}, fmt.Errorf("match: %w", err)
		}
	}

	elapsed := s.clock().Sub(start)
	res.ProcessingTimeMS = elapsed.Milliseconds()
	s.audit(ctx, store.ExtractionLog{
		SessionID:      session,
		InputType:      input,
		RawOCRText:     out.FinalText,
		ConsensusScore: out.ConsensusScore,
		Mentions:       mentions,
		Outcomes:       res.Medicines,
		ProcessingMS:   res.ProcessingTimeMS,
	})
	s.Metrics.ObservePipeline(string(input), elapsed)
	log.Info("prescription processed", "mentions", len(mentions), "ms", res.ProcessingTimeMS)
	return res, nil
}

func (s *Service) options(o ocr.Options) ocr.Options {
	if o.Passes <= 0 {
		o.Passes = s.Defaults.Passes
	}
	if o.MinConsensus <= 0 {
		o.MinConsensus = s.Defaults.MinConsensus
	}
	return o
}

// recognize consults the cache unless debug passes were asked for, since
// cached outcomes carry no pass list.
func (s *Service) recognize(ctx context.Context, img ocr.Image, opts ocr.Options) (ocr.Outcome, error) {
	if s.Cache == nil || opts.Debug {
		return s.OCR.Run(ctx, img, opts)
	}
	log := logger.WithContext(ctx)
	hash := store.ImageHash(img.Data)
	if out, err := s.Cache.Find(ctx, hash, opts.Passes, opts.MinConsensus, s.CacheTTL); err == nil {
		log.Info("ocr cache hit", "image_hash", hash)
		return out, nil
	}
	out, err := s.OCR.Run(ctx, img, opts)
	if err != nil {
		return ocr.Outcome{}, err
	}
	if err := s.Cache.Upsert(ctx, hash, opts.Passes, opts.MinConsensus, out); err != nil {
		log.Warn("ocr cache write failed", "image_hash", hash, "err", err)
	}
	return out, nil
}

// audit never fails the request and outlives its cancellation.
func (s *Service) audit(ctx context.Context, e store.ExtractionLog) {
	if s.Audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.Audit.Insert(actx, e); err != nil {
		logger.WithContext(ctx).Error("audit log failed", "err", err)
	}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
