package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medmap/api/internal/match"
	"medmap/api/internal/pipeline"
)

const (
	cbShowText   = "show_text"
	cbShowPasses = "show_passes"

	maxMessage = 3900
)

func resultKeyboard(debug bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("Show OCR text", cbShowText)}
	if debug {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Show passes", cbShowPasses))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func formatResult(res pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OCR quality: %s (%.0f%%)", res.OCR.QualityTag, res.OCR.ConsensusScore)
	if res.OCR.FallbackUsed != "" {
		fmt.Fprintf(&b, ", via %s", res.OCR.FallbackUsed)
	}
	b.WriteString("\n\n")
	if len(res.Medicines) == 0 {
		b.WriteString(res.Message)
		return b.String()
	}
	for i, o := range res.Medicines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o.RawInput)
		b.WriteString(formatOutcome(o))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Session %s, %d ms", res.SessionID, res.ProcessingTimeMS)
	return b.String()
}

func formatOutcome(o match.Outcome) string {
	switch o.Resolution {
	case match.ResolutionMatched:
		m := o.Match
		s := fmt.Sprintf("   -> %s (%s %s, %s)\n   %s match, %.2f%%, %s confidence\n",
			m.BrandName, m.GenericName, m.Strength, m.Form, m.Method, m.FinalScore, m.Confidence)
		if len(m.Warnings) > 0 {
			ws := make([]string, len(m.Warnings))
			for i, w := range m.Warnings {
				ws[i] = string(w)
			}
			s += "   warnings: " + strings.Join(ws, ", ") + "\n"
		}
		return s
	case match.ResolutionExternal:
		e := o.External
		return fmt.Sprintf("   -> %s (%s %s, %s)\n   verified by %s, %.0f%%, not in catalog\n",
			e.BrandName, e.GenericName, e.Strength, e.Form, e.VerifiedBy, e.FinalScore)
	default:
		return "   -> no match, needs manual review\n"
	}
}

func formatOCRText(res pipeline.Result) string {
	if strings.TrimSpace(res.OCR.FinalText) == "" {
		return "OCR text is empty."
	}
	return "OCR text:\n\n" + res.OCR.FinalText
}

func formatPasses(res pipeline.Result) string {
	var b strings.Builder
	for _, p := range res.OCR.PassResults {
		fmt.Fprintf(&b, "[%s] %.0f%%\n%s\n\n", p.Variant, p.Confidence, p.Text)
	}
	return b.String()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxMessage {
		return string(r[:maxMessage]) + "…"
	}
	return s
}
