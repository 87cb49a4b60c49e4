package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseRecord decodes a sanitized extraction reply. The classified type wins
// over whatever type the reply claims.
func ParseRecord(text string, classified Type) (*Record, error) {
	var record Record
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if strings.TrimSpace(text) == "null" {
		return nil, fmt.Errorf("%w: reply is null", ErrMalformedReply)
	}

	if record.Type == "" {
		record.Type = classified
	} else if t, err := ParseType(string(record.Type)); err != nil || t != classified {
		slog.Warn("Extraction reply disagrees with classification",
			"classified", classified,
			"reply_type", record.Type,
		)
		record.Type = classified
	} else {
		record.Type = t
	}

	if record.Type == Market && record.Items == nil {
		record.Items = []Item{}
	}

	return &record, nil
}

// NormalizeAmounts rewrites the total and the item prices with
// NormalizeAmount
func (r *Record) NormalizeAmounts() {
	r.TotalAmount = NormalizeAmount(r.TotalAmount)
	for i := range r.Items {
		r.Items[i].Price = NormalizeAmount(r.Items[i].Price)
	}
}

var currencyMarkers = []string{"tl", "₺", "lira"}

// NormalizeAmount strips Turkish lira markers from a monetary value and
// formats it with two decimals. Values that still do not parse are returned
// cleaned but otherwise as they were.
func NormalizeAmount(value string) string {
	lower := strings.ToLower(value)
	if lower == "n/a" {
		return lower
	}

	cleaned := lower
	for _, marker := range currencyMarkers {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	amount, err := decimal.NewFromString(strings.ReplaceAll(cleaned, ",", "."))
	if err != nil {
		return cleaned
	}
	return amount.StringFixed(2)
}
