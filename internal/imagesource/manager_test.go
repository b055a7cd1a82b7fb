package imagesource_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/medverify/internal/imagesource"
)

var _ = Describe("Manager", func() {
	var (
		device  *mockDevice
		manager *imagesource.Manager
		opts    []imagesource.Option
		ctx     context.Context
	)

	BeforeEach(func() {
		device = newMockDevice()
		opts = []imagesource.Option{imagesource.WithReadyTimeout(50 * time.Millisecond)}
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		manager = imagesource.NewManager(device, opts...)
	})

	Describe("CheckAvailability", func() {
		It("reports an available camera and releases the probe stream", func() {
			avail := manager.CheckAvailability(ctx)
			Expect(avail.Available).To(BeTrue())
			Expect(device.streams).To(HaveLen(1))
			Expect(device.streams[0].closeCount()).To(Equal(1))
		})

		It("reports unsupported without a device", func() {
			avail := imagesource.NewManager(nil).CheckAvailability(ctx)
			Expect(avail.Available).To(BeFalse())
			Expect(avail.Reason).To(Equal(imagesource.ReasonUnsupported))
			Expect(avail.Message).NotTo(BeEmpty())
		})

		When("permission is denied", func() {
			BeforeEach(func() {
				device.permission = imagesource.PermissionDenied
			})

			It("does not probe the device", func() {
				avail := manager.CheckAvailability(ctx)
				Expect(avail.Reason).To(Equal(imagesource.ReasonPermissionDenied))
				Expect(device.opened).To(BeEmpty())
			})
		})

		When("permission has not been asked yet", func() {
			BeforeEach(func() {
				device.permission = imagesource.PermissionPrompt
			})

			It("reports the prompt without triggering it", func() {
				avail := manager.CheckAvailability(ctx)
				Expect(avail.Available).To(BeTrue())
				Expect(avail.Reason).To(Equal(imagesource.ReasonPermissionPrompt))
				Expect(device.opened).To(BeEmpty())
			})
		})

		When("there are no cameras", func() {
			BeforeEach(func() {
				device.devices = nil
			})

			It("reports not found", func() {
				Expect(manager.CheckAvailability(ctx).Reason).To(Equal(imagesource.ReasonNotFound))
			})
		})

		DescribeTable("distinguishing driver failures",
			func(err error, reason imagesource.Reason) {
				device.openErrs = []error{err}
				avail := imagesource.NewManager(device).CheckAvailability(ctx)
				Expect(avail.Available).To(BeFalse())
				Expect(avail.Reason).To(Equal(reason))
				Expect(avail.Message).To(Equal(reason.Message()))
			},
			Entry("busy", imagesource.ErrDeviceBusy, imagesource.ReasonDeviceBusy),
			Entry("overconstrained", imagesource.ErrOverconstrained, imagesource.ReasonOverconstrained),
			Entry("not found", imagesource.ErrDeviceNotFound, imagesource.ReasonNotFound),
			Entry("security", imagesource.ErrSecurity, imagesource.ReasonSecurity),
			Entry("aborted", imagesource.ErrAborted, imagesource.ReasonAborted),
			Entry("permission", imagesource.ErrPermissionDenied, imagesource.ReasonPermissionDenied),
			Entry("unsupported", imagesource.ErrUnsupported, imagesource.ReasonUnsupported),
			Entry("anything else", errors.New("boom"), imagesource.ReasonUnknown),
		)

		It("gives every reason its own message", func() {
			seen := map[string]imagesource.Reason{}
			for _, r := range []imagesource.Reason{
				imagesource.ReasonUnsupported, imagesource.ReasonPermissionDenied, imagesource.ReasonPermissionPrompt,
				imagesource.ReasonDeviceBusy, imagesource.ReasonOverconstrained, imagesource.ReasonNotFound,
				imagesource.ReasonSecurity, imagesource.ReasonAborted,
			} {
				Expect(r.Message()).NotTo(BeEmpty())
				Expect(seen).NotTo(HaveKey(r.Message()))
				seen[r.Message()] = r
			}
		})
	})

	Describe("StartStream", func() {
		It("opens with the preferred constraints", func() {
			s, err := manager.StartStream(ctx, imagesource.FacingBack)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Constraints()).To(Equal(imagesource.PreferredConstraints(imagesource.FacingBack)))
			Expect(device.opened).To(HaveLen(1))
		})

		When("the preferred constraints are rejected", func() {
			BeforeEach(func() {
				device.openErrs = []error{imagesource.ErrOverconstrained}
			})

			It("falls back to the minimal constraints", func() {
				s, err := manager.StartStream(ctx, imagesource.FacingFront)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.Constraints()).To(Equal(imagesource.MinimalConstraints(imagesource.FacingFront)))
				Expect(s.Facing()).To(Equal(imagesource.FacingFront))
				Expect(device.opened).To(HaveLen(2))
			})
		})

		When("both attempts fail", func() {
			BeforeEach(func() {
				device.openErrs = []error{imagesource.ErrOverconstrained, imagesource.ErrPermissionDenied}
			})

			It("returns the fallback error", func() {
				_, err := manager.StartStream(ctx, imagesource.FacingBack)
				Expect(err).To(MatchError(imagesource.ErrPermissionDenied))
				Expect(imagesource.ReasonFor(err)).To(Equal(imagesource.ReasonPermissionDenied))
			})
		})

		When("metadata never arrives", func() {
			BeforeEach(func() {
				device.neverReady = true
			})

			It("times out and closes the driver", func() {
				_, err := manager.StartStream(ctx, imagesource.FacingBack)
				Expect(err).To(MatchError(imagesource.ErrStreamTimeout))
				Expect(device.streams[0].closeCount()).To(Equal(1))
			})
		})

		When("a stream is already live", func() {
			It("stops the previous stream first", func() {
				first, err := manager.StartStream(ctx, imagesource.FacingBack)
				Expect(err).NotTo(HaveOccurred())

				second, err := manager.StartStream(ctx, imagesource.FacingBack)
				Expect(err).NotTo(HaveOccurred())

				Expect(first.Done()).To(BeClosed())
				Expect(second.Done()).NotTo(BeClosed())
				Expect(device.streams[0].closeCount()).To(Equal(1))
			})
		})
	})

	Describe("CaptureFrame", func() {
		var (
			stream *imagesource.Stream
			data   []byte
			err    error
		)

		JustBeforeEach(func() {
			var startErr error
			stream, startErr = manager.StartStream(ctx, imagesource.FacingBack)
			Expect(startErr).NotTo(HaveOccurred())
		})

		It("returns a JPEG of the current frame", func() {
			data, err = manager.CaptureFrame(stream)
			Expect(err).NotTo(HaveOccurred())
			img, decodeErr := jpeg.Decode(bytes.NewReader(data))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(64))
		})

		It("rejects stopped streams", func() {
			Expect(manager.StopStream(stream)).To(Succeed())
			_, err = manager.CaptureFrame(stream)
			Expect(err).To(MatchError(imagesource.ErrStreamClosed))
		})

		It("rejects a nil stream", func() {
			_, err = manager.CaptureFrame(nil)
			Expect(err).To(MatchError(imagesource.ErrFrameNotReady))
		})

		When("the driver has no frame", func() {
			BeforeEach(func() {
				device.frame = nil
			})

			It("reports the frame is not ready", func() {
				_, err = manager.CaptureFrame(stream)
				Expect(err).To(MatchError(imagesource.ErrFrameNotReady))
			})
		})

		When("the capture is degenerate", func() {
			BeforeEach(func() {
				opts = append(opts, imagesource.WithMinFrameBytes(1<<20))
			})

			It("asks for a retry", func() {
				_, err = manager.CaptureFrame(stream)
				Expect(err).To(MatchError(imagesource.ErrFrameTooSmall))
			})
		})
	})

	Describe("StopStream", func() {
		It("is idempotent", func() {
			s, err := manager.StartStream(ctx, imagesource.FacingBack)
			Expect(err).NotTo(HaveOccurred())

			Expect(manager.StopStream(s)).To(Succeed())
			Expect(manager.StopStream(s)).To(Succeed())
			Expect(manager.StopStream(nil)).To(Succeed())
			Expect(device.streams[0].closeCount()).To(Equal(1))
		})
	})

	Describe("WithStream", func() {
		It("releases the stream after fn returns an error", func() {
			err := manager.WithStream(ctx, imagesource.FacingBack, func(ctx context.Context, s *imagesource.Stream) error {
				return errors.New("recognition failed")
			})
			Expect(err).To(MatchError("recognition failed"))
			Expect(device.streams[0].closeCount()).To(Equal(1))
		})

		It("releases the stream when fn panics", func() {
			Expect(func() {
				_ = manager.WithStream(ctx, imagesource.FacingBack, func(ctx context.Context, s *imagesource.Stream) error {
					panic("decoder crashed")
				})
			}).To(Panic())
			Expect(device.streams[0].closeCount()).To(Equal(1))
		})

		It("cancels fn's context when the stream stops", func() {
			err := manager.WithStream(ctx, imagesource.FacingBack, func(ctx context.Context, s *imagesource.Stream) error {
				Expect(manager.StopStream(s)).To(Succeed())
				<-ctx.Done()
				return ctx.Err()
			})
			Expect(err).To(MatchError(context.Canceled))
		})

		It("does not run fn when the stream cannot start", func() {
			device.openErrs = []error{imagesource.ErrDeviceBusy, imagesource.ErrDeviceBusy}
			called := false
			err := manager.WithStream(ctx, imagesource.FacingBack, func(ctx context.Context, s *imagesource.Stream) error {
				called = true
				return nil
			})
			Expect(err).To(MatchError(imagesource.ErrDeviceBusy))
			Expect(called).To(BeFalse())
		})
	})
})
