package core

import (
	"strings"
	"unicode"
)

// DeriveMerchantKey builds the grouping key used by subscription detection.
// The counterparty name wins when present; otherwise the raw description is
// used. Keys are lowercased with digits and punctuation stripped so that
// "NETFLIX.COM 123-456" and "Netflix.com 789" group together.
func DeriveMerchantKey(counterpartyName, rawDescription string) string {
	src := strings.TrimSpace(counterpartyName)
	if src == "" {
		src = strings.TrimSpace(rawDescription)
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(src) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
		// digits and punctuation are dropped: they carry per-charge noise
	}
	return strings.TrimSpace(b.String())
}
