package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type is the receipt layout reported by the classification call
type Type string

const (
	Fuel       Type = "FUEL"
	Market     Type = "MARKET"
	Restaurant Type = "RESTAURANT"
)

// Types returns every known receipt type
func Types() []Type {
	return []Type{Fuel, Market, Restaurant}
}

// ParseType decodes a classification reply into a Type. Surrounding
// whitespace, quotes, backticks and a trailing period are ignored, as is case.
func ParseType(reply string) (Type, error) {
	token := strings.ToUpper(strings.Trim(reply, " \t\r\n\"'`."))
	for _, t := range Types() {
		if Type(token) == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedType, strings.TrimSpace(reply))
}

// Item is a purchased line on a market receipt
type Item struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// UnmarshalJSON accepts numbers as well as strings for the name and price
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  looseString `json:"name"`
		Price looseString `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Item{Name: string(raw.Name), Price: string(raw.Price)}
	return nil
}

// looseString decodes a JSON string, a number kept as written, or null.
// Models often answer "total_amount": 10.50 despite the schema.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case string:
		*s = looseString(v)
	case json.Number:
		*s = looseString(v.String())
	case nil:
		*s = ""
	default:
		return fmt.Errorf("expected a string or a number, got %s", data)
	}
	return nil
}

// Record holds the fields extracted from a receipt. LicensePlate is only
// meaningful for FUEL receipts and Items only for MARKET receipts.
type Record struct {
	Type          Type   `json:"type"`
	BusinessName  string `json:"business_name"`
	Date          string `json:"date"` // DD.MM.YYYY as printed
	TotalAmount   string `json:"total_amount"`
	VATPercentage string `json:"vat_percentage"`
	LicensePlate  string `json:"license_plate"`
	Items         []Item `json:"items"`
}

// MarshalJSON writes only the fields that belong to the record's type, in
// the order the extraction schema lists them
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case Fuel:
		return json.Marshal(struct {
			Type          Type   `json:"type"`
			BusinessName  string `json:"business_name"`
			Date          string `json:"date"`
			LicensePlate  string `json:"license_plate"`
			TotalAmount   string `json:"total_amount"`
			VATPercentage string `json:"vat_percentage"`
		}{r.Type, r.BusinessName, r.Date, r.LicensePlate, r.TotalAmount, r.VATPercentage})
	case Market:
		items := r.Items
		if items == nil {
			items = []Item{}
		}
		return json.Marshal(struct {
			Type          Type   `json:"type"`
			BusinessName  string `json:"business_name"`
			Date          string `json:"date"`
			TotalAmount   string `json:"total_amount"`
			VATPercentage string `json:"vat_percentage,omitempty"`
			Items         []Item `json:"items"`
		}{r.Type, r.BusinessName, r.Date, r.TotalAmount, r.VATPercentage, items})
	default:
		return json.Marshal(struct {
			Type          Type   `json:"type"`
			BusinessName  string `json:"business_name"`
			Date          string `json:"date"`
			TotalAmount   string `json:"total_amount"`
			VATPercentage string `json:"vat_percentage"`
		}{r.Type, r.BusinessName, r.Date, r.TotalAmount, r.VATPercentage})
	}
}

// UnmarshalJSON decodes a model reply, accepting numbers for the text fields
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type          looseString `json:"type"`
		BusinessName  looseString `json:"business_name"`
		Date          looseString `json:"date"`
		TotalAmount   looseString `json:"total_amount"`
		VATPercentage looseString `json:"vat_percentage"`
		LicensePlate  looseString `json:"license_plate"`
		Items         []Item      `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		Type:          Type(raw.Type),
		BusinessName:  string(raw.BusinessName),
		Date:          string(raw.Date),
		TotalAmount:   string(raw.TotalAmount),
		VATPercentage: string(raw.VATPercentage),
		LicensePlate:  string(raw.LicensePlate),
		Items:         raw.Items,
	}
	return nil
}

// Analysis is the result of one analyze request
type Analysis struct {
	ID        string        `json:"id"`
	Filename  string        `json:"filename"`
	Type      Type          `json:"type"`
	Record    *Record       `json:"data"`
	FellBack  bool          `json:"sanitize_fallback,omitempty"`
	Duration  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// MarshalJSON adds the processing time in seconds
func (a Analysis) MarshalJSON() ([]byte, error) {
	type analysis Analysis
	return json.Marshal(struct {
		analysis
		ProcessingTime float64 `json:"processing_time"`
	}{analysis(a), a.Duration.Seconds()})
}
