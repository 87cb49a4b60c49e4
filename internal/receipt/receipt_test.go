package receipt

import (
	"encoding/json"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var schemaKey = regexp.MustCompile(`"([a-z_]+)":`)

func schemaKeys(t Type) []string {
	schema, ok := Schema(t)
	Expect(ok).To(BeTrue())
	var keys []string
	for _, m := range schemaKey.FindAllStringSubmatch(schema, -1) {
		keys = append(keys, m[1])
	}
	return keys
}

var _ = Describe("ParseType", func() {
	DescribeTable("accepts the known types",
		func(reply string, expected Type) {
			t, err := ParseType(reply)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(expected))
		},
		Entry("fuel", "FUEL", Fuel),
		Entry("market with whitespace", "  MARKET\n", Market),
		Entry("lower case", "restaurant", Restaurant),
		Entry("quoted", `"FUEL"`, Fuel),
		Entry("backticks and period", "`MARKET`.", Market),
	)

	DescribeTable("rejects anything else",
		func(reply string) {
			_, err := ParseType(reply)
			Expect(err).To(MatchError(ErrUnrecognizedType))
		},
		Entry("unknown", "UNKNOWN"),
		Entry("empty", ""),
		Entry("sentence", "This is a MARKET receipt"),
		Entry("grocery", "GROCERY"),
	)
})

var _ = Describe("Schemas", func() {
	It("should have a schema for every type", func() {
		for _, t := range Types() {
			_, ok := Schema(t)
			Expect(ok).To(BeTrue(), string(t))
		}
	})

	It("should not have a schema for unknown types", func() {
		_, ok := Schema(Type("UNKNOWN"))
		Expect(ok).To(BeFalse())
	})

	DescribeTable("lists the fields of each type",
		func(t Type, keys []string) {
			Expect(schemaKeys(t)).To(Equal(keys))
		},
		Entry("fuel", Fuel, []string{"type", "business_name", "date", "license_plate", "total_amount", "vat_percentage"}),
		Entry("restaurant", Restaurant, []string{"type", "business_name", "date", "total_amount", "vat_percentage"}),
		Entry("market", Market, []string{"type", "business_name", "date", "total_amount", "items", "name", "price"}),
	)

	Describe("ExtractionPrompt", func() {
		It("should name the type and embed its schema", func() {
			prompt, err := ExtractionPrompt(Fuel)
			Expect(err).NotTo(HaveOccurred())
			Expect(prompt).To(ContainSubstring("(FUEL)"))
			Expect(prompt).To(ContainSubstring(`"license_plate"`))
			Expect(prompt).To(ContainSubstring("Return ONLY the JSON object"))
		})

		It("should reject unknown types", func() {
			_, err := ExtractionPrompt(Type("UNKNOWN"))
			Expect(err).To(MatchError(ErrUnrecognizedType))
		})
	})
})

var _ = Describe("ParseRecord", func() {
	It("should decode a market reply", func() {
		record, err := ParseRecord(`{"type":"MARKET","business_name":"Acme","date":"01.01.2024","total_amount":"10.50","items":[{"name":"Bread","price":"3.00"}]}`, Market)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Type).To(Equal(Market))
		Expect(record.Items).To(Equal([]Item{{Name: "Bread", Price: "3.00"}}))
	})

	It("should fill in a missing type", func() {
		record, err := ParseRecord(`{"business_name":"Shell"}`, Fuel)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Type).To(Equal(Fuel))
	})

	It("should prefer the classified type", func() {
		record, err := ParseRecord(`{"type":"RESTAURANT","business_name":"Shell"}`, Fuel)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Type).To(Equal(Fuel))
	})

	It("should normalize the reply's type spelling", func() {
		record, err := ParseRecord(`{"type":"fuel"}`, Fuel)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Type).To(Equal(Fuel))
	})

	It("should give market records an empty item list", func() {
		record, err := ParseRecord(`{"type":"MARKET"}`, Market)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Items).To(BeEmpty())
		Expect(record.Items).NotTo(BeNil())
	})

	DescribeTable("accepts numbers where the schema asks for text",
		func(text string, classified Type, expected Record) {
			record, err := ParseRecord(text, classified)
			Expect(err).NotTo(HaveOccurred())
			Expect(*record).To(Equal(expected))
		},
		Entry("numeric vat", `{"type":"FUEL","vat_percentage":20}`, Fuel,
			Record{Type: Fuel, VATPercentage: "20"}),
		Entry("numeric total keeps its digits", `{"type":"RESTAURANT","total_amount":10.50,"vat_percentage":8}`, Restaurant,
			Record{Type: Restaurant, TotalAmount: "10.50", VATPercentage: "8"}),
		Entry("numeric item price", `{"type":"MARKET","total_amount":10.50,"items":[{"name":"Bread","price":3.00}]}`, Market,
			Record{Type: Market, TotalAmount: "10.50", Items: []Item{{Name: "Bread", Price: "3.00"}}}),
		Entry("null fields", `{"type":"FUEL","license_plate":null,"total_amount":null}`, Fuel,
			Record{Type: Fuel}),
	)

	It("should still reject objects where text is expected", func() {
		_, err := ParseRecord(`{"type":"FUEL","total_amount":{"value":1}}`, Fuel)
		Expect(err).To(MatchError(ErrMalformedReply))
	})

	DescribeTable("rejects replies that are not a JSON object",
		func(text string) {
			_, err := ParseRecord(text, Restaurant)
			Expect(err).To(MatchError(ErrMalformedReply))
		},
		Entry("prose", "Sorry, I cannot read this."),
		Entry("empty", ""),
		Entry("null", "null"),
		Entry("array", `[{"type":"RESTAURANT"}]`),
		Entry("truncated", `{"type":"RESTAURANT"`),
	)
})

var _ = Describe("NormalizeAmount", func() {
	DescribeTable("formats monetary values",
		func(input, expected string) {
			Expect(NormalizeAmount(input)).To(Equal(expected))
		},
		Entry("plain", "10.5", "10.50"),
		Entry("comma decimal", "24,99", "24.99"),
		Entry("lira suffix", "150,00 TL", "150.00"),
		Entry("lira sign", "₺42", "42.00"),
		Entry("spelled out", "12 Lira", "12.00"),
		Entry("not available", "N/A", "n/a"),
		Entry("unparseable", "about 5", "about 5"),
		Entry("empty", "", ""),
	)

	It("should normalize every amount in a record", func() {
		record := &Record{Type: Market, TotalAmount: "7,5 TL", Items: []Item{{Name: "Milk", Price: "2,5"}}}
		record.NormalizeAmounts()
		Expect(record.TotalAmount).To(Equal("7.50"))
		Expect(record.Items[0].Price).To(Equal("2.50"))
	})
})

var _ = Describe("Record JSON", func() {
	It("should write fuel fields in schema order", func() {
		data, err := json.Marshal(Record{Type: Fuel, BusinessName: "Shell", Date: "02.02.2024", LicensePlate: "34 ABC 123", TotalAmount: "1500.00", VATPercentage: "20", Items: []Item{{Name: "x"}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"type":"FUEL","business_name":"Shell","date":"02.02.2024","license_plate":"34 ABC 123","total_amount":"1500.00","vat_percentage":"20"}`))
	})

	It("should always write market items", func() {
		data, err := json.Marshal(Record{Type: Market, BusinessName: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"type":"MARKET","business_name":"Acme","date":"","total_amount":"","items":[]}`))
	})

	It("should leave the plate and items out of restaurant records", func() {
		data, err := json.Marshal(Record{Type: Restaurant, LicensePlate: "34 ABC 123", Items: []Item{{Name: "x"}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring("license_plate"))
		Expect(string(data)).NotTo(ContainSubstring("items"))
		Expect(string(data)).To(ContainSubstring(`"vat_percentage":""`))
	})
})

var _ = Describe("Analysis JSON", func() {
	It("should report the processing time in seconds", func() {
		analysis := Analysis{
			ID:        "id-1",
			Filename:  "a.jpg",
			Type:      Restaurant,
			Record:    &Record{Type: Restaurant},
			Duration:  2500 * time.Millisecond,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		data, err := json.Marshal(analysis)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(data, &got)).To(Succeed())
		Expect(got).To(HaveKeyWithValue("processing_time", 2.5))
		Expect(got).To(HaveKeyWithValue("type", "RESTAURANT"))
		Expect(got).To(HaveKey("data"))
		Expect(got).NotTo(HaveKey("sanitize_fallback"))
		Expect(got).NotTo(HaveKey("Duration"))
	})
})
