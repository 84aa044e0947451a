package dpm

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Record is the unit of correlation across the three-step flow: the form
// fields stamped at issuance, later merged with the gateway's transaction
// fields. Values are kept as strings because that is how both the browser
// form and the gateway callback deliver them.
type Record map[string]string

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge fills fields from payload that are absent (or empty) in r. Existing
// values always win, so a tampered callback cannot overwrite what the browser
// session established at issuance.
func (r Record) Merge(payload Record) {
	for k, v := range payload {
		if r[k] == "" {
			r[k] = v
		}
	}
}

// NormalizeAmount coerces a user-entered amount into the fixed two-decimal
// form the gateway signs. Currency punctuation is stripped; anything that
// still fails to parse becomes "0.00" rather than an error, so a garbled
// amount degrades into a no-charge order instead of a broken form.
func NormalizeAmount(raw string) string {
	cleaned := strings.Map(func(c rune) rune {
		if c == '$' || c == ',' || unicode.IsSpace(c) {
			return -1
		}
		return c
	}, raw)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
