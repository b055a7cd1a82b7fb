package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

const (
	// DefaultReadyTimeout bounds the wait for stream metadata
	DefaultReadyTimeout = 5 * time.Second
	// MinFrameBytes rejects degenerate captures
	MinFrameBytes = 100
	// JPEGQuality is used for captured frames
	JPEGQuality = 90
)

// Availability is the result of a camera probe
type Availability struct {
	Available bool   `json:"available"`
	Reason    Reason `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

func unavailable(r Reason) Availability {
	return Availability{Available: false, Reason: r, Message: r.Message()}
}

// Stream is a live camera stream owned by a Manager
type Stream struct {
	facing      Facing
	constraints Constraints
	driver      DriverStream
	done        chan struct{}
	once        sync.Once
	closeErr    error
}

// Done is closed when the stream stops
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Facing returns the camera the stream was opened on
func (s *Stream) Facing() Facing {
	return s.facing
}

// Constraints returns the constraint set the device accepted
func (s *Stream) Constraints() Constraints {
	return s.constraints
}

func (s *Stream) stop() error {
	s.once.Do(func() {
		close(s.done)
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}

// Option configures a Manager
type Option func(*Manager)

// WithReadyTimeout overrides DefaultReadyTimeout
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.readyTimeout = d
	}
}

// WithMinFrameBytes overrides MinFrameBytes
func WithMinFrameBytes(n int) Option {
	return func(m *Manager) {
		m.minFrameBytes = n
	}
}

// Manager owns the camera lifecycle. At most one stream is live at a time.
type Manager struct {
	device        Device
	readyTimeout  time.Duration
	minFrameBytes int

	mu     sync.Mutex
	active *Stream
}

// NewManager creates a Manager over device. A nil device reports unsupported.
func NewManager(device Device, opts ...Option) *Manager {
	m := &Manager{
		device:        device,
		readyTimeout:  DefaultReadyTimeout,
		minFrameBytes: MinFrameBytes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAvailability probes the device by opening and closing a stream
func (m *Manager) CheckAvailability(ctx context.Context) Availability {
	if m.device == nil {
		return unavailable(ReasonUnsupported)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return Availability{Available: true}
	}

	perm, err := m.device.Permission(ctx)
	if err != nil && !errors.Is(err, ErrUnsupported) {
		return unavailable(ReasonFor(err))
	}
	switch perm {
	case PermissionDenied:
		return unavailable(ReasonPermissionDenied)
	case PermissionPrompt:
		// probing would trigger the prompt
		return Availability{Available: true, Reason: ReasonPermissionPrompt, Message: ReasonPermissionPrompt.Message()}
	}

	devices, err := m.device.EnumerateDevices(ctx)
	if err != nil {
		return unavailable(ReasonFor(err))
	}
	if len(devices) == 0 {
		return unavailable(ReasonNotFound)
	}

	driver, err := m.device.OpenStream(ctx, PreferredConstraints(""))
	if err != nil {
		slog.Warn("Camera probe failed", "error", err)
		return unavailable(ReasonFor(err))
	}
	if err := driver.Close(); err != nil {
		slog.Warn("Closing probe stream", "error", err)
	}
	return Availability{Available: true}
}

// StartStream opens a stream on the requested camera, stopping any live stream first.
// The preferred constraints are tried before the minimal set, and the stream must report
// ready within the ready timeout.
func (m *Manager) StartStream(ctx context.Context, facing Facing) (*Stream, error) {
	if m.device == nil {
		return nil, ErrUnsupported
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		slog.Info("Stopping previous camera stream")
		if err := m.active.stop(); err != nil {
			slog.Warn("Closing previous stream", "error", err)
		}
		m.active = nil
	}

	constraints := PreferredConstraints(facing)
	driver, err := m.device.OpenStream(ctx, constraints)
	if err != nil {
		slog.Warn("Preferred camera constraints rejected, retrying with minimal constraints", "error", err)
		constraints = MinimalConstraints(facing)
		driver, err = m.device.OpenStream(ctx, constraints)
		if err != nil {
			return nil, fmt.Errorf("opening camera stream: %w", err)
		}
	}

	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()

	select {
	case <-driver.Ready():
	case <-timer.C:
		driver.Close()
		return nil, fmt.Errorf("waiting %s for camera: %w", m.readyTimeout, ErrStreamTimeout)
	case <-ctx.Done():
		driver.Close()
		return nil, fmt.Errorf("waiting for camera: %w: %w", ErrAborted, ctx.Err())
	}

	s := &Stream{
		facing:      facing,
		constraints: constraints,
		driver:      driver,
		done:        make(chan struct{}),
	}
	m.active = s
	slog.Info("Camera stream started", "facing", facing, "max_width", constraints.MaxWidth, "max_height", constraints.MaxHeight)
	return s, nil
}

// CaptureFrame JPEG-encodes the stream's current frame
func (m *Manager) CaptureFrame(s *Stream) ([]byte, error) {
	if s == nil {
		return nil, ErrFrameNotReady
	}
	select {
	case <-s.done:
		return nil, ErrStreamClosed
	default:
	}
	select {
	case <-s.driver.Ready():
	default:
		return nil, ErrFrameNotReady
	}

	img, err := s.driver.Frame()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrFrameNotReady
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	if buf.Len() < m.minFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, buf.Len())
	}
	return buf.Bytes(), nil
}

// StopStream releases the stream. Stopping a stopped or nil stream is a no-op.
func (m *Manager) StopStream(s *Stream) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
	return s.stop()
}

// WithStream runs fn with a live stream and releases the stream on every exit path.
// The context passed to fn is cancelled if the stream stops while fn runs.
func (m *Manager) WithStream(ctx context.Context, facing Facing, fn func(ctx context.Context, s *Stream) error) error {
	s, err := m.StartStream(ctx, facing)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.StopStream(s); err != nil {
			slog.Warn("Stopping camera stream", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	return fn(ctx, s)
}
