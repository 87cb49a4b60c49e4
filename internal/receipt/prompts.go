package receipt

import "fmt"

// ClassificationPrompt asks the model for the receipt type only
const ClassificationPrompt = `Determine the type of receipt from the image. Return ONLY one of these values:
"FUEL" for fuel/gas station receipts,
"MARKET" for grocery/market receipts,
"RESTAURANT" for food/restaurant receipts.
Return ONLY the type with no additional text.`

var schemas = map[Type]string{
	Fuel: `
    {
        "type": "FUEL",
        "business_name": "Name of the gas station",
        "date": "Date of purchase (DD.MM.YYYY)",
        "license_plate": "Vehicle license plate number which locates under the date and above the VAT percentage",
        "total_amount": "Total amount paid",
        "vat_percentage": "VAT percentage"
    }
    `,
	Restaurant: `
    {
        "type": "RESTAURANT",
        "business_name": "Name of the restaurant",
        "date": "Date of purchase (DD.MM.YYYY)",
        "total_amount": "Total amount paid",
        "vat_percentage": "VAT percentage"
    }
    `,
	Market: `
    {
        "type": "MARKET",
        "business_name": "Name of the market/store",
        "date": "Date of purchase (DD.MM.YYYY)",
        "total_amount": "Total amount paid",
        "items": [
            {
                "name": "Item name (item name can not be contains only kg information. It should be concat with next line. It should be like this: 2,078 KG X 24,99 TL MV. Sogan KURU.)",
                "price": "Item price"
            },
            ...
        ]
    }
    `,
}

// Schema returns the JSON template the model fills in for a receipt type
func Schema(t Type) (string, bool) {
	s, ok := schemas[t]
	return s, ok
}

// ExtractionPrompt builds the instruction for the extraction call
func ExtractionPrompt(t Type) (string, error) {
	schema, ok := Schema(t)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedType, string(t))
	}
	return fmt.Sprintf(`Extract the receipt information based on the determined type (%s)
    and return ONLY a valid JSON object with the following structure:
    %s
    Return ONLY the JSON object with no additional text or formatting.`, t, schema), nil
}
