package imagesource_test

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/zombor/medverify/internal/imagesource"
)

// mockDevice records calls and returns canned driver results
type mockDevice struct {
	mu sync.Mutex

	devices    []imagesource.DeviceInfo
	enumErr    error
	permission imagesource.Permission
	permErr    error

	// openErrs is consumed one entry per OpenStream call
	openErrs   []error
	neverReady bool
	frame      image.Image

	opened  []imagesource.Constraints
	streams []*mockStream
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		devices: []imagesource.DeviceInfo{{ID: "cam0", Label: "Back camera", Facing: imagesource.FacingBack}},
		frame:   testFrame(64, 48),
	}
}

func (d *mockDevice) EnumerateDevices(ctx context.Context) ([]imagesource.DeviceInfo, error) {
	return d.devices, d.enumErr
}

func (d *mockDevice) Permission(ctx context.Context) (imagesource.Permission, error) {
	return d.permission, d.permErr
}

func (d *mockDevice) OpenStream(ctx context.Context, c imagesource.Constraints) (imagesource.DriverStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, c)
	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	s := &mockStream{ready: make(chan struct{}), frame: d.frame}
	if !d.neverReady {
		close(s.ready)
	}
	d.streams = append(d.streams, s)
	return s, nil
}

type mockStream struct {
	mu       sync.Mutex
	ready    chan struct{}
	frame    image.Image
	frameErr error
	closed   int
}

func (s *mockStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *mockStream) Frame() (image.Image, error) {
	return s.frame, s.frameErr
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *mockStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testFrame(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	return img
}
