package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"medmap/api/internal/match"
)

type InputType string

const (
	InputImage InputType = "image"
	InputText  InputType = "text"
)

// ExtractionLog is one processed prescription as written to extraction_logs.
type ExtractionLog struct {
	SessionID      uuid.UUID
	InputType      InputType
	RawOCRText     string
	ConsensusScore float64
	Mentions       []match.Mention
	Outcomes       []match.Outcome
	ProcessingMS   int64
}

type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

func (r *AuditRepo) Insert(ctx context.Context, e ExtractionLog) error {
	mentions, err := jsonArray(e.Mentions)
	if err != nil {
		return fmt.Errorf("audit: mentions: %w", err)
	}
	outcomes, err := jsonArray(e.Outcomes)
	if err != nil {
		return fmt.Errorf("audit: outcomes: %w", err)
	}
	const q = `
insert into extraction_logs(session_id, input_type, raw_ocr_text, consensus_score, structured_json, matches_json, processing_ms)
values ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.DB.ExecContext(ctx, q,
		e.SessionID.String(), string(e.InputType), e.RawOCRText, e.ConsensusScore,
		mentions, outcomes, e.ProcessingMS)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// jsonArray encodes a nil slice as [] to satisfy the jsonb not-null columns.
func jsonArray[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}
