// Package verification sequences recognition and lookup into a single verdict.
package verification

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/medverify/internal/catalog"
	"github.com/zombor/medverify/internal/imagesource"
	"github.com/zombor/medverify/internal/lookup"
	"github.com/zombor/medverify/internal/preprocess"
	"github.com/zombor/medverify/internal/scanning"
)

// Catalog answers product queries
type Catalog interface {
	ExactLookup(key string, kind lookup.KeyKind) (catalog.ProductRecord, bool)
	SubstringLookup(text string) (catalog.ProductRecord, bool)
	FuzzySearch(term string, limit int) []catalog.ProductRecord
}

// Camera is the live capture source
type Camera interface {
	CheckAvailability(ctx context.Context) imagesource.Availability
	WithStream(ctx context.Context, facing imagesource.Facing, fn func(ctx context.Context, s *imagesource.Stream) error) error
	CaptureFrame(s *imagesource.Stream) ([]byte, error)
}

// IDGenerator generates cycle IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Method selects the recognition strategy for camera scans
type Method string

const (
	MethodCode Method = "code"
	MethodText Method = "text"
)

// ParseMethod accepts "code" (or "qr") and "text" (or "ocr")
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code", "qr":
		return MethodCode, nil
	case "text", "ocr":
		return MethodText, nil
	}
	return "", fmt.Errorf("unknown scan method %q", s)
}

// Config tunes an Orchestrator
type Config struct {
	Policy  Policy
	Workers int
	Upload  imagesource.UploadPolicy
}

// DefaultConfig uses the default thresholds, one worker per CPU, and a 5 MB upload limit
func DefaultConfig() Config {
	return Config{
		Policy:  DefaultPolicy,
		Workers: runtime.NumCPU(),
		Upload:  imagesource.DefaultUploadPolicy,
	}
}

// Orchestrator runs verification cycles. It holds no per-cycle state and is safe for
// concurrent use; each call is an independent cycle.
type Orchestrator struct {
	catalog     Catalog
	code        scanning.CodeScanner
	text        scanning.TextScanner
	camera      Camera
	policy      Policy
	upload      imagesource.UploadPolicy
	pool        *pool
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewOrchestrator creates an Orchestrator with default ID generator and time source.
// camera may be nil when no capture device is configured.
func NewOrchestrator(cat Catalog, code scanning.CodeScanner, text scanning.TextScanner, camera Camera, cfg Config) *Orchestrator {
	return NewOrchestratorWithDeps(cat, code, text, camera, cfg, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewOrchestratorWithDeps creates an Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(cat Catalog, code scanning.CodeScanner, text scanning.TextScanner, camera Camera, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Orchestrator {
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Orchestrator{
		catalog:     cat,
		code:        code,
		text:        text,
		camera:      camera,
		policy:      cfg.Policy,
		upload:      cfg.Upload,
		pool:        newPool(cfg.Workers),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// cycle is one verification run
type cycle struct {
	id      string
	method  string
	started time.Time
	machine *machine
	done    bool
}

func (o *Orchestrator) begin(method string) *cycle {
	id := o.idGenerator.Generate()
	slog.Info("Verification started", "cycle", id, "method", method)
	return &cycle{
		id:      id,
		method:  method,
		started: time.Now(),
		machine: newMachine(id),
	}
}

func (c *cycle) to(next State) error {
	return c.machine.to(next)
}

// finish moves the cycle to Terminal and stamps the verdict
func (c *cycle) finish(v Verdict) Verdict {
	if !c.done {
		if err := c.to(StateTerminal); err != nil {
			slog.Error("Verification fault", "cycle", c.id, "error", err)
			v = systemError(err)
		}
		c.done = true
	}
	v.CycleID = c.id
	slog.Info("Verification finished",
		"cycle", c.id,
		"method", c.method,
		"status", v.Status,
		"duration", time.Since(c.started),
	)
	return v
}

// fault ends the cycle with system_error. Every non-terminal state may move to Terminal.
func (c *cycle) fault(err error) Verdict {
	slog.Error("Verification fault", "cycle", c.id, "state", c.machine.state, "error", err)
	return c.finish(systemError(err))
}

// recoverInto converts a panic on the calling goroutine into system_error
func (c *cycle) recoverInto(v *Verdict) {
	if r := recover(); r != nil {
		*v = c.fault(fmt.Errorf("panic: %v", r))
	}
}

func systemError(err error) Verdict {
	v := newVerdict(StatusSystemError)
	v.Reason = err.Error()
	return v
}

// failure maps an offload error: cancellation is scan_error, a worker panic is system_error
func (c *cycle) failure(ctx context.Context, err error, otherwise Status) Verdict {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return c.fault(err)
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		v := newVerdict(StatusScanError)
		v.Reason = "cancelled"
		return c.finish(v)
	}
	v := newVerdict(otherwise)
	v.Reason = err.Error()
	return c.finish(v)
}

func (o *Orchestrator) verified(c *cycle, rec catalog.ProductRecord) Verdict {
	v := newVerdict(StatusVerified)
	v.Product = snapshot(rec, o.timeSource.Now())
	return c.finish(v)
}

// validate gates uploads before any decoding
func (o *Orchestrator) validate(c *cycle, in Input) (Verdict, bool) {
	err := o.upload.Validate(in.Size, in.MimeType)
	switch {
	case err == nil:
		return Verdict{}, true
	case errors.Is(err, imagesource.ErrInvalidFileType):
		v := newVerdict(StatusInvalidFileType)
		v.Reason = err.Error()
		return c.finish(v), false
	case errors.Is(err, imagesource.ErrFileTooLarge):
		v := newVerdict(StatusFileTooLarge)
		v.Reason = err.Error()
		return c.finish(v), false
	}
	return c.fault(err), false
}

func (o *Orchestrator) decode(ctx context.Context, in Input) (image.Image, error) {
	return offload(ctx, o.pool, func() (image.Image, error) {
		return scanning.DecodeImage(in.Data, in.MimeType)
	})
}

// VerifyCode runs the structured-code path. Text input is treated as an already decoded payload.
func (o *Orchestrator) VerifyCode(ctx context.Context, in Input) (v Verdict) {
	c := o.begin("code")
	defer c.recoverInto(&v)

	if in.Kind == InputText {
		return o.lookupPayload(c, in.Text)
	}

	if err := c.to(StateCapturing); err != nil {
		return c.fault(err)
	}
	if v, ok := o.validate(c, in); !ok {
		return v
	}
	return o.recognizeCode(ctx, c, in)
}

// recognizeCode continues a cycle in Capturing with validated image bytes
func (o *Orchestrator) recognizeCode(ctx context.Context, c *cycle, in Input) Verdict {
	img, err := o.decode(ctx, in)
	if err != nil {
		return c.failure(ctx, err, StatusScanError)
	}

	if err := c.to(StateRecognizing); err != nil {
		return c.fault(err)
	}
	outcome, err := offload(ctx, o.pool, func() (scanning.CodeOutcome, error) {
		return o.code.Decode(ctx, img), nil
	})
	if err != nil {
		return c.failure(ctx, err, StatusScanError)
	}
	if ctx.Err() != nil {
		return c.failure(ctx, ctx.Err(), StatusScanError)
	}

	switch outcome.Kind {
	case scanning.CodeDecoded:
		slog.Debug("Code decoded", "cycle", c.id, "payload", outcome.Text)
		return o.lookupPayload(c, outcome.Text)
	case scanning.CodeNotFound:
		return c.finish(newVerdict(StatusQRNotFound))
	}
	v := newVerdict(StatusScanError)
	v.Reason = outcome.Reason
	return c.finish(v)
}

// lookupPayload resolves a decoded code by exact registration number
func (o *Orchestrator) lookupPayload(c *cycle, payload string) Verdict {
	if err := c.to(StateLookingUp); err != nil {
		return c.fault(err)
	}
	reg := scanning.RegistrationFromPayload(payload)
	if rec, ok := o.catalog.ExactLookup(reg, lookup.KeyRegistration); ok {
		return o.verified(c, rec)
	}
	v := newVerdict(StatusNotFound)
	v.Candidate = reg
	return c.finish(v)
}

// VerifyText runs the photo path. Text input skips recognition and goes to substring lookup.
func (o *Orchestrator) VerifyText(ctx context.Context, in Input) (v Verdict) {
	c := o.begin("text")
	defer c.recoverInto(&v)

	if in.Kind == InputText {
		if err := c.to(StateLookingUp); err != nil {
			return c.fault(err)
		}
		return o.lookupText(c, newVerdict(StatusNotFound), in.Text)
	}

	if err := c.to(StateCapturing); err != nil {
		return c.fault(err)
	}
	if v, ok := o.validate(c, in); !ok {
		return v
	}
	return o.recognizeText(ctx, c, in)
}

// recognizeText continues a cycle in Capturing with validated image bytes
func (o *Orchestrator) recognizeText(ctx context.Context, c *cycle, in Input) Verdict {
	img, err := o.decode(ctx, in)
	if err != nil {
		return c.failure(ctx, err, StatusOCRError)
	}

	if err := c.to(StatePreprocessing); err != nil {
		return c.fault(err)
	}
	png, err := offload(ctx, o.pool, func() ([]byte, error) {
		return preprocess.Encode(preprocess.Apply(img))
	})
	if err != nil {
		return c.failure(ctx, err, StatusOCRError)
	}

	if err := c.to(StateRecognizing); err != nil {
		return c.fault(err)
	}
	outcome, err := offload(ctx, o.pool, func() (scanning.TextOutcome, error) {
		return o.text.Read(ctx, png), nil
	})
	if err != nil {
		return c.failure(ctx, err, StatusOCRError)
	}
	if ctx.Err() != nil {
		return c.failure(ctx, ctx.Err(), StatusOCRError)
	}

	switch outcome.Kind {
	case scanning.TextError:
		v := newVerdict(StatusOCRError)
		v.Reason = outcome.Reason
		return c.finish(v)
	case scanning.TextNone:
		v := newVerdict(StatusOCRNoText)
		v.Confidence = &outcome.Confidence
		return c.finish(v)
	}

	tier := o.policy.Tier(outcome.Confidence, outcome.Text)
	slog.Debug("Text recognized", "cycle", c.id, "confidence", outcome.Confidence, "tier", tier)

	var v Verdict
	switch tier {
	case TierHigh:
		v = newVerdict(StatusNotFound)
	case TierMedium:
		v = newVerdict(StatusOCRLowConfidence)
	default:
		v = newVerdict(StatusOCRFailed)
	}
	v.ExtractedText = outcome.Text
	v.Confidence = &outcome.Confidence
	v.Candidate = scanning.ExtractRegistrationNumber(outcome.Text)
	if tier != TierHigh {
		v.Suggestions = scanning.Suggestions(outcome.Text)
		return c.finish(v)
	}

	if err := c.to(StateLookingUp); err != nil {
		return c.fault(err)
	}
	return o.lookupText(c, v, outcome.Text)
}

// lookupText finds the first registration number contained in text, then tries the
// cleaned-up candidate extracted from it. miss is returned when neither matches.
func (o *Orchestrator) lookupText(c *cycle, miss Verdict, text string) Verdict {
	if rec, ok := o.catalog.SubstringLookup(text); ok {
		return o.verified(c, rec)
	}
	candidate := scanning.ExtractRegistrationNumber(text)
	if candidate != "" {
		if rec, ok := o.catalog.ExactLookup(candidate, lookup.KeyRegistration); ok {
			return o.verified(c, rec)
		}
	}
	miss.Candidate = candidate
	miss.Suggestions = scanning.Suggestions(text)
	return c.finish(miss)
}

// RejectOversized ends a cycle for an upload whose body was cut off at limit bytes
func (o *Orchestrator) RejectOversized(method string, limit int64) Verdict {
	c := o.begin(method)
	if err := c.to(StateCapturing); err != nil {
		return c.fault(err)
	}
	v := newVerdict(StatusFileTooLarge)
	v.Reason = fmt.Sprintf("%v: request body exceeds %d bytes", imagesource.ErrFileTooLarge, limit)
	return c.finish(v)
}

// VerifyManual looks up a typed registration number, or the batch number when no
// registration number is given.
func (o *Orchestrator) VerifyManual(ctx context.Context, registration, batch string) (v Verdict) {
	c := o.begin("manual")
	defer c.recoverInto(&v)

	registration = strings.TrimSpace(registration)
	batch = strings.TrimSpace(batch)

	if err := c.to(StateLookingUp); err != nil {
		return c.fault(err)
	}

	var (
		rec catalog.ProductRecord
		ok  bool
	)
	switch {
	case registration != "":
		rec, ok = o.catalog.ExactLookup(registration, lookup.KeyRegistration)
	case batch != "":
		rec, ok = o.catalog.ExactLookup(batch, lookup.KeyBatch)
	}
	if ok {
		return o.verified(c, rec)
	}
	return c.finish(newVerdict(StatusNotFound))
}

// Search returns ranked candidates for a search-as-you-type term
func (o *Orchestrator) Search(term string) []catalog.ProductRecord {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < lookup.MinTermLength {
		return []catalog.ProductRecord{}
	}
	return o.catalog.FuzzySearch(term, lookup.DefaultLimit)
}

// Select verifies a record the user picked from search results
func (o *Orchestrator) Select(rec catalog.ProductRecord) (v Verdict) {
	c := o.begin("select")
	defer c.recoverInto(&v)
	return o.verified(c, rec)
}

// SelectRegistration resolves a picked registration number and selects it
func (o *Orchestrator) SelectRegistration(registration string) Verdict {
	rec, ok := o.catalog.ExactLookup(strings.TrimSpace(registration), lookup.KeyRegistration)
	if !ok {
		c := o.begin("select")
		if err := c.to(StateLookingUp); err != nil {
			return c.fault(err)
		}
		return c.finish(newVerdict(StatusNotFound))
	}
	return o.Select(rec)
}

// CameraAvailability probes the configured camera
func (o *Orchestrator) CameraAvailability(ctx context.Context) imagesource.Availability {
	if o.camera == nil {
		return imagesource.Availability{
			Reason:  imagesource.ReasonUnsupported,
			Message: imagesource.ReasonUnsupported.Message(),
		}
	}
	return o.camera.CheckAvailability(ctx)
}

// VerifyCamera captures one frame and runs the chosen path on it. The stream is released
// before returning; if it stops while recognition runs the cycle ends in scan_error.
func (o *Orchestrator) VerifyCamera(ctx context.Context, method Method, facing imagesource.Facing) (v Verdict) {
	c := o.begin("camera_" + string(method))
	defer c.recoverInto(&v)

	if o.camera == nil {
		return c.finish(cameraUnavailable(imagesource.ErrUnsupported))
	}
	if err := c.to(StateCapturing); err != nil {
		return c.fault(err)
	}

	err := o.camera.WithStream(ctx, facing, func(ctx context.Context, s *imagesource.Stream) error {
		data, err := o.camera.CaptureFrame(s)
		if err != nil {
			return err
		}
		in := ImageInput(data, "image/jpeg", int64(len(data)))
		switch method {
		case MethodCode:
			v = o.recognizeCode(ctx, c, in)
		default:
			v = o.recognizeText(ctx, c, in)
		}
		return nil
	})
	if err != nil {
		return c.finish(cameraUnavailable(err))
	}
	return v
}

func cameraUnavailable(err error) Verdict {
	reason := imagesource.ReasonFor(err)
	v := newVerdict(StatusCameraUnavailable)
	v.Reason = string(reason)
	v.Detail = reason.Message()
	return v
}
