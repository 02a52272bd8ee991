package ocr

// PassResult is one recognition attempt over one preprocessing variant.
type PassResult struct {
	Variant    string  `json:"variant"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..100, recognizer's own estimate
}

type ConsensusResult struct {
	Text        string  `json:"text"`
	Score       float64 `json:"score"` // 0..100, share of confirmed positions
	AgreedCount int     `json:"agreed_count"`
}

type QualityTag string

const (
	HighConfidence   QualityTag = "HIGH_CONFIDENCE"
	MediumConfidence QualityTag = "MEDIUM_CONFIDENCE"
	LowQuality       QualityTag = "LOW_QUALITY"
)

type Fallback string

const (
	FallbackNone           Fallback = ""
	FallbackBestSinglePass Fallback = "best_single_pass"
	FallbackVision         Fallback = "vision_fallback"
)

// Outcome is what the OCR stage hands to the rest of the pipeline.
type Outcome struct {
	FinalText       string       `json:"final_text"`
	ConsensusScore  float64      `json:"consensus_score"`
	QualityTag      QualityTag   `json:"quality_tag"`
	PassesCompleted int          `json:"passes_completed"`
	PassesAgreed    int          `json:"passes_agreed"`
	FallbackUsed    Fallback     `json:"fallback_used,omitempty"`
	PassResults     []PassResult `json:"pass_results,omitempty"`
}

// Image is the original upload; MIME may be empty and is sniffed by engines.
type Image struct {
	Data []byte
	MIME string
}

// Options of a single OCR request.
type Options struct {
	Passes       int  // 1..len(variants)
	MinConsensus int  // passes that must agree for a confirmed token
	Debug        bool // attach per-pass results
}
