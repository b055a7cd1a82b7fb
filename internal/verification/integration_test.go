package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/medverify/internal/catalog"
	"github.com/zombor/medverify/internal/imagesource"
	"github.com/zombor/medverify/internal/lookup"
	"github.com/zombor/medverify/internal/scanning"
)

const registryFeed = `[
  {"Nafdac Reg. Number": "NC1-0023", "Product Name": "Paracetamol 500mg", "Manufacturer": "Emzor", "Active Ingredients": "Paracetamol", "Approval Date": "2019-05-14", "Status": "Active"},
  {"Nafdac Reg. Number": "A4-1234", "Product Name": "Amoxil", "Manufacturer": "GSK", "Status": "Active"},
  {"Nafdac Reg. Number": "B7-5678", "Product Name": "Zinc Amoxicillin Plus", "Manufacturer": "Fidson", "Status": "Withdrawn"},
  {"Nafdac Reg. Number": "C2-9012", "Product Name": "Amoxicillin 500mg", "Manufacturer": "May & Baker", "Status": "Active"}
]`

var _ = Describe("Integration", func() {
	var (
		store        *catalog.BoltStore
		engine       *lookup.Engine
		spool        string
		manager      *imagesource.Manager
		text         *mockTextScanner
		orchestrator *Orchestrator
		ctx          context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()

		records, err := catalog.LoadJSON(strings.NewReader(registryFeed))
		Expect(err).NotTo(HaveOccurred())

		store, err = catalog.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "catalog.db"))
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Import(records)).To(Succeed())

		loaded, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		snapshot, err := catalog.NewSnapshot(loaded)
		Expect(err).NotTo(HaveOccurred())
		engine = lookup.New(snapshot)

		spool = GinkgoT().TempDir()
		manager = imagesource.NewManager(imagesource.NewDirectoryDevice(spool, imagesource.FacingBack))

		text = &mockTextScanner{}
		orchestrator = NewOrchestrator(engine, scanning.NewCodeReader(), text, manager, DefaultConfig())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("verifies an uploaded QR code end to end", func() {
		v := orchestrator.VerifyCode(ctx, ImageInput(qrPNG("NC1-0023"), "image/png", 0))
		Expect(v.Status).To(Equal(StatusVerified))
		Expect(v.Product.ProductName).To(Equal("Paracetamol 500mg"))
		Expect(v.Product.ProductStatus).To(Equal("active"))
	})

	It("assigns every cycle its own ID", func() {
		first := orchestrator.VerifyManual(ctx, "NC1-0023", "")
		second := orchestrator.VerifyManual(ctx, "NC1-0023", "")
		Expect(first.CycleID).NotTo(BeEmpty())
		Expect(second.CycleID).NotTo(Equal(first.CycleID))
	})

	It("routes a photo without a code to qr_not_found", func() {
		v := orchestrator.VerifyCode(ctx, ImageInput(pngBytes(120, 120), "image/png", 0))
		Expect(v.Status).To(Equal(StatusQRNotFound))
	})

	It("verifies a withdrawn product and reports its status", func() {
		v := orchestrator.VerifyManual(ctx, "b7-5678", "")
		Expect(v.Status).To(Equal(StatusVerified))
		Expect(v.Product.ProductStatus).To(Equal("withdrawn"))
	})

	It("ranks search results with prefix matches first", func() {
		names := []string{}
		for _, r := range orchestrator.Search("amox") {
			names = append(names, r.ProductName)
		}
		Expect(names).To(Equal([]string{"Amoxicillin 500mg", "Amoxil", "Zinc Amoxicillin Plus"}))
	})

	It("reads a low-confidence label without touching the catalog", func() {
		text.outcome = scanning.Extracted("NAFDAC NO NC1-0023", 45)
		v := orchestrator.VerifyText(ctx, ImageInput(pngBytes(64, 64), "image/png", 0))
		Expect(v.Status).To(Equal(StatusOCRLowConfidence))
		Expect(v.ExtractedText).To(Equal("NAFDAC NO NC1-0023"))
	})

	It("keeps a language model's confidence on the 0-100 scale", func() {
		model := ghttp.NewServer()
		defer model.Close()
		model.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			ghttp.RespondWith(http.StatusOK, `{"message": {"role": "assistant", "content": "{\"text\": \"NAFDAC NO NC1-0023\", \"confidence\": 1}"}, "done": true}`),
		))
		recognizer, err := scanning.NewOllama(model.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		reader := scanning.NewTextReader(recognizer)
		defer reader.Close()

		orchestrator = NewOrchestrator(engine, scanning.NewCodeReader(), reader, manager, DefaultConfig())
		v := orchestrator.VerifyText(ctx, ImageInput(pngBytes(64, 64), "image/png", 0))
		Expect(v.Status).To(Equal(StatusOCRFailed))
		Expect(v.Confidence).To(HaveValue(Equal(1.0)))
		Expect(v.Product).To(BeNil())
	})

	It("scans a QR code spooled by a capture station", func() {
		Expect(os.WriteFile(filepath.Join(spool, "frame-0001.png"), qrPNG("NAFDAC-A4-1234-Amoxil"), 0o644)).To(Succeed())

		Expect(orchestrator.CameraAvailability(ctx).Available).To(BeTrue())
		v := orchestrator.VerifyCamera(ctx, MethodCode, imagesource.FacingBack)
		Expect(v.Status).To(Equal(StatusVerified))
		Expect(v.Product.ProductName).To(Equal("Amoxil"))
	})

	It("reports a missing capture station", func() {
		Expect(os.Remove(spool)).To(Succeed())
		v := orchestrator.VerifyCamera(ctx, MethodCode, imagesource.FacingBack)
		Expect(v.Status).To(Equal(StatusCameraUnavailable))
		Expect(v.Reason).To(Equal(string(imagesource.ReasonNotFound)))
	})

	It("serves verdicts over HTTP", func() {
		server := NewServer(orchestrator, BasicAuth{})
		ghServer := ghttp.NewServer()
		defer ghServer.Close()
		ghServer.AppendHandlers(server.Handler().ServeHTTP)

		body, contentType := uploadBody("label.png", "image/png", qrPNG("C2-9012"))
		resp, err := http.Post(ghServer.URL()+"/api/verify/code", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var v Verdict
		Expect(json.NewDecoder(resp.Body).Decode(&v)).To(Succeed())
		Expect(v.Status).To(Equal(StatusVerified))
		Expect(v.Product.ProductName).To(Equal("Amoxicillin 500mg"))
	})
})
