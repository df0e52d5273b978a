// Package symbols maps free-text tickers to canonical exchange-qualified symbols.
package symbols

import "strings"

// exchangeSuffixes maps exchange hints to the provider's symbol suffix.
var exchangeSuffixes = map[string]string{
	"NSE":    ".NS",
	"BSE":    ".BO",
	"NASDAQ": "",
	"NYSE":   "",
}

// knownSuffixes are suffixes already carried by a canonical symbol.
var knownSuffixes = []string{".NS", ".BO"}

// Normalizer resolves raw user input to a canonical symbol. Unknown tickers
// fall back to the default exchange rather than failing, so Normalize never
// returns an error; ambiguity is resolved by policy.
type Normalizer struct {
	defaultExchange string
}

func NewNormalizer(defaultExchange string) *Normalizer {
	if defaultExchange == "" {
		defaultExchange = "NSE"
	}
	return &Normalizer{defaultExchange: strings.ToUpper(defaultExchange)}
}

// Normalize canonicalizes a ticker, optionally guided by an exchange hint.
// It is idempotent: Normalize(Normalize(x, h), h) == Normalize(x, h).
func (n *Normalizer) Normalize(raw, exchangeHint string) string {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	symbol = strings.ReplaceAll(symbol, " ", "")
	if symbol == "" {
		return symbol
	}

	// Already exchange-qualified.
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(symbol, suffix) {
			return symbol
		}
	}

	hint := strings.ToUpper(strings.TrimSpace(exchangeHint))
	if suffix, ok := exchangeSuffixes[hint]; ok {
		return symbol + suffix
	}

	// Unknown or missing hint: best-guess default exchange.
	if suffix, ok := exchangeSuffixes[n.defaultExchange]; ok {
		return symbol + suffix
	}
	return symbol
}
