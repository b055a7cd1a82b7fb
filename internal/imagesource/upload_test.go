package imagesource_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/medverify/internal/imagesource"
)

var _ = Describe("ValidateUpload", func() {
	DescribeTable("gating uploads",
		func(size int64, mimeType string, expected error) {
			err := imagesource.ValidateUpload(size, mimeType)
			if expected == nil {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(expected))
			}
		},
		Entry("small JPEG", int64(1024), "image/jpeg", nil),
		Entry("exactly 5 MB", imagesource.MaxUploadBytes, "image/png", nil),
		Entry("HEIC", int64(2048), "image/heic", nil),
		Entry("6 MB", int64(6*1024*1024), "image/jpeg", imagesource.ErrFileTooLarge),
		Entry("PDF", int64(1024), "application/pdf", imagesource.ErrInvalidFileType),
		Entry("empty type", int64(1024), "", imagesource.ErrInvalidFileType),
		Entry("wrong type wins over size", int64(6*1024*1024), "text/plain", imagesource.ErrInvalidFileType),
	)

	It("honours a custom ceiling", func() {
		policy := imagesource.UploadPolicy{MaxBytes: 10}
		Expect(policy.Validate(11, "image/png")).To(MatchError(imagesource.ErrFileTooLarge))
		Expect(policy.Validate(10, "image/png")).To(Succeed())
	})
})
