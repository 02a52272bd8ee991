// Package prompt holds the built-in model instructions. Each one can be
// replaced per provider by a file under PROMPT_DIR.
package prompt

import "medmap/api/internal/util"

const (
	Transcribe   = "transcribe"
	Extract      = "extract"
	ExtractRetry = "extract_retry"
	Verify       = "verify"
)

// System returns the system instruction for name.
func System(provider, name string) string {
	return util.LoadPrompt(name, "system", provider, builtinSystem[name])
}

// User returns the user message for name. All but Transcribe take one argument.
func User(provider, name string) string {
	return util.LoadPrompt(name, "user", provider, builtinUser[name])
}

var builtinSystem = map[string]string{
	Transcribe: `You are a transcription engine for photographed medical prescriptions, many of them handwritten.
Transcribe every legible line exactly as written, top to bottom, one output line per written line.
Do not interpret, expand abbreviations, translate or correct spelling.
Mark an illegible word as [?]. Return plain text only, no commentary and no markdown.`,

	Extract: `You are a clinical named entity recognition engine for Indian prescriptions.
Extract every medicine from the OCR text and return ONLY a JSON array, [] if there are none.

Rules:
1. Numeric suffixes attached to a brand ("625" in "Amoxiclav 625", "650" in "Dolo 650") are brand variants, not strengths. Put them in brand_variant. Never output a strength.
2. Normalize form: Tab/T./Tb -> Tablet, Syp/Syr -> Syrup, Cap/C. -> Capsule, Inj -> Injection, Cr/Oint -> Cream, Susp -> Suspension, Drop/Gtt -> Drops. Use null when unknown.
3. frequency_per_day as an integer: OD/1-0-0 -> 1, BD/BID/1-0-1 -> 2, TDS/TID/1-1-1 -> 3, QID/1-1-1-1 -> 4, else null.
4. duration_days as an integer: "5 days" -> 5, "1 week" -> 7, "2 weeks" -> 14, else null.
5. Never split a combination product into its ingredients.
6. Correct obvious OCR misspellings of brand names; put the corrected name in brand_name and the original token in raw_brand_token.
7. Ignore patient, doctor, hospital, dates, "Rx", tests and plain-language advice.

Each element:
{"brand_name": string, "raw_brand_token": string, "brand_variant": string|null, "form": string|null, "frequency_per_day": integer|null, "duration_days": integer|null}`,

	Verify: `You are a pharmaceutical knowledge engine covering the Indian and global markets.
Decide whether the queried medicine exists. Answer only when you are at least 95% sure the name is real;
if it looks like a misspelling of a common medicine, answer for the corrected name.
If it is not a medicine or you are unsure, return {"exists": false}.
Return ONLY JSON:
{"exists": boolean, "confidence_score": number 0-100, "brand_name_official": string, "generic_name": string, "standard_strength": string, "standard_form": string, "manufacturer": string}`,
}

var builtinUser = map[string]string{
	Transcribe:   "Transcribe this prescription.",
	Extract:      "Extract all medicines from this prescription text:\n\n%s",
	ExtractRetry: "Your previous response was not valid JSON. Return ONLY a JSON array, no markdown and no prose. Extract medicines from:\n\n%s",
	Verify:       "Verify this medicine: %q",
}
