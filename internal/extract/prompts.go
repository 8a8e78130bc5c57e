package extract

import (
	"fmt"

	"voiceledger/internal/core"
)

// voicePrompt instructs the model to extract a transaction from dictation.
// Sale or debt is inferred from what was said; the region's language hint
// keeps mixed-language utterances parseable.
func voicePrompt(region core.RegionProfile) string {
	return fmt.Sprintf(`JSON ONLY: {"item": "string", "amount": number, "type": "sale"|"debt"}.
Context: Sale (+) means selling/earning. Debt (-) means giving/spending money.
Lang: %s.`, region.Lang)
}

// receiptPrompt fixes everything but the amount: a scanned bill is always a
// debt with a generic label.
func receiptPrompt() string {
	return `Find total amount on receipt. Return JSON ONLY: {"item": "receipt", "amount": number, "type": "debt"}.`
}
