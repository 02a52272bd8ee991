package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"medmap/api/internal/ocr"
)

// OCRCacheRepo keeps OCR outcomes per (image hash, passes, min consensus).
type OCRCacheRepo struct{ DB *sql.DB }

func NewOCRCacheRepo(db *sql.DB) *OCRCacheRepo { return &OCRCacheRepo{DB: db} }

// ImageHash is the hex sha256 of the raw image bytes.
func ImageHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Find returns sql.ErrNoRows when the entry is missing, older than maxAge
// (if maxAge > 0) or unreadable.
func (r *OCRCacheRepo) Find(ctx context.Context, imageHash string, passes, minConsensus int, maxAge time.Duration) (ocr.Outcome, error) {
	const q = `select outcome_json, created_at
	           from ocr_cache
	           where image_hash=$1 and passes=$2 and min_consensus=$3`
	var (
		js []byte
		ts time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, imageHash, passes, minConsensus).Scan(&js, &ts); err != nil {
		return ocr.Outcome{}, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return ocr.Outcome{}, sql.ErrNoRows
	}
	var out ocr.Outcome
	if err := json.Unmarshal(js, &out); err != nil {
		return ocr.Outcome{}, sql.ErrNoRows
	}
	return out, nil
}

// Upsert stores the outcome without its debug pass list.
func (r *OCRCacheRepo) Upsert(ctx context.Context, imageHash string, passes, minConsensus int, o ocr.Outcome) error {
	o.PassResults = nil
	js, err := json.Marshal(o)
	if err != nil {
		return err
	}
	const q = `
insert into ocr_cache(image_hash, passes, min_consensus, outcome_json)
values ($1,$2,$3,$4)
on conflict (image_hash, passes, min_consensus)
do update set outcome_json=excluded.outcome_json, created_at=now()`
	_, err = r.DB.ExecContext(ctx, q, imageHash, passes, minConsensus, js)
	return err
}
