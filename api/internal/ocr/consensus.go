package ocr

import (
	"math"
	"strings"
)

// LineBreak is the placeholder token that keeps line layout through alignment.
const LineBreak = "\n"

// Aligner arranges tokenized passes into columns: column p holds the token each
// pass contributes at aligned position p, or "" when it contributes nothing.
type Aligner interface {
	Align(passes [][]string) [][]string
}

// PositionalAligner aligns by index. It assumes all passes read the same
// document in the same order, which holds for filter variants of one image.
type PositionalAligner struct{}

func (PositionalAligner) Align(passes [][]string) [][]string {
	width := 0
	for _, p := range passes {
		width = max(width, len(p))
	}
	cols := make([][]string, width)
	for pos := range cols {
		col := make([]string, len(passes))
		for i, p := range passes {
			if pos < len(p) {
				col[i] = p[pos]
			}
		}
		cols[pos] = col
	}
	return cols
}

// Tokenize splits on whitespace and emits LineBreak between non-blank lines.
func Tokenize(text string) []string {
	var toks []string
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(toks) > 0 {
			toks = append(toks, LineBreak)
		}
		toks = append(toks, fields...)
	}
	return toks
}

// ConsensusBuilder votes token by token over aligned passes.
type ConsensusBuilder struct {
	Aligner Aligner
}

// BuildConsensus uses positional alignment.
func BuildConsensus(passes []PassResult, minAgree int) ConsensusResult {
	return ConsensusBuilder{Aligner: PositionalAligner{}}.Build(passes, minAgree)
}

type vote struct {
	count   int
	maxConf float64
}

func (b ConsensusBuilder) Build(passes []PassResult, minAgree int) ConsensusResult {
	switch len(passes) {
	case 0:
		return ConsensusResult{}
	case 1:
		return ConsensusResult{Text: passes[0].Text, Score: 100, AgreedCount: 1}
	}
	aligner := b.Aligner
	if aligner == nil {
		aligner = PositionalAligner{}
	}

	tokenized := make([][]string, len(passes))
	for i, p := range passes {
		tokenized[i] = Tokenize(p.Text)
	}

	var (
		winners []string
		agreed  int
	)
	for _, col := range aligner.Align(tokenized) {
		votes := make(map[string]*vote, len(col))
		var order []string // first-seen order keeps tie-breaking deterministic
		for i, tok := range col {
			if tok == "" {
				continue
			}
			key := strings.ToLower(tok)
			v, ok := votes[key]
			if !ok {
				v = &vote{}
				votes[key] = v
				order = append(order, key)
			}
			v.count++
			v.maxConf = math.Max(v.maxConf, passes[i].Confidence)
		}
		if len(order) == 0 {
			continue
		}

		best := order[0]
		for _, key := range order[1:] {
			v, bv := votes[key], votes[best]
			if v.count > bv.count || (v.count == bv.count && v.maxConf > bv.maxConf) {
				best = key
			}
		}

		original := best
		for _, tok := range col {
			if tok != "" && strings.ToLower(tok) == best {
				original = tok
				break
			}
		}
		if votes[best].count >= minAgree {
			agreed++
		}
		winners = append(winners, original)
	}

	if len(winners) == 0 {
		return ConsensusResult{}
	}
	return ConsensusResult{
		Text:        joinTokens(winners),
		Score:       round2(float64(agreed) / float64(len(winners)) * 100),
		AgreedCount: agreed,
	}
}

func joinTokens(toks []string) string {
	var sb strings.Builder
	lineStart := true
	for _, t := range toks {
		if t == LineBreak {
			sb.WriteString(LineBreak)
			lineStart = true
			continue
		}
		if !lineStart {
			sb.WriteByte(' ')
		}
		sb.WriteString(t)
		lineStart = false
	}
	return strings.TrimSpace(sb.String())
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
