package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractRegistrationNumber", func() {
	DescribeTable("finding codes in OCR text",
		func(text, expected string) {
			Expect(ExtractRegistrationNumber(text)).To(Equal(expected))
		},
		Entry("labelled code", "NAFDAC NO NC1-0023", "NC1-0023"),
		Entry("label with punctuation", "NAFDAC REG. NO: A4-1234", "A4-1234"),
		Entry("unlabelled code", "Paracetamol A4-1234 tablets", "A4-1234"),
		Entry("spaces around the dash", "Reg No A4 - 1234", "A4-1234"),
		Entry("look-alike characters in digits", "NAFDAC NO: A4-12S4", "A4-1254"),
		Entry("letter O read for zero", "NAFDAC NO NC1-OO23", "NC1-0023"),
		Entry("second letter that is really a digit", "REG NO AS-1234", "A5-1234"),
		Entry("lower-case input", "nafdac no a4-1234", "A4-1234"),
		Entry("prefers the standard four-digit form", "X1-123 then A4-1234", "A4-1234"),
		Entry("falls back to a short code", "code X1-123 only", "X1-123"),
		Entry("nothing plausible", "Take two tablets daily", ""),
	)
})

var _ = Describe("Suggestions", func() {
	It("lists codes first, then digit runs", func() {
		Expect(Suggestions("NC1-0023 LOT 12345")).To(Equal([]string{"NC1-0023", "0023", "12345"}))
	})

	It("includes letter-digit fragments", func() {
		Expect(Suggestions("batch B2024 expiry")).To(Equal([]string{"B2024"}))
	})

	It("caps the list at five", func() {
		Expect(Suggestions("1111 2222 3333 4444 5555 6666 7777")).To(HaveLen(5))
	})

	It("returns an empty list for plain words", func() {
		Expect(Suggestions("hello world")).To(BeEmpty())
	})
})

var _ = Describe("RegistrationFromPayload", func() {
	It("unwraps prefixed payloads", func() {
		Expect(RegistrationFromPayload("NAFDAC-A4-1234-Paracetamol 500mg")).To(Equal("A4-1234"))
	})

	It("unwraps payloads without a name", func() {
		Expect(RegistrationFromPayload("nafdac-nc1-0023")).To(Equal("NC1-0023"))
	})

	It("returns plain payloads trimmed", func() {
		Expect(RegistrationFromPayload("  NC1-0023\n")).To(Equal("NC1-0023"))
	})
})
