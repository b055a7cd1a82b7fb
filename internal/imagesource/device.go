package imagesource

import (
	"context"
	"fmt"
	"image"
)

// Facing selects the front or back camera
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// ParseFacing accepts "back"/"environment" and "front"/"user". Empty means back.
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "", "back", "environment":
		return FacingBack, nil
	case "front", "user":
		return FacingFront, nil
	}
	return "", fmt.Errorf("unknown camera facing %q", s)
}

// Constraints describe the stream a caller asks for. Zero values mean "any".
type Constraints struct {
	Facing    Facing
	Width     int // ideal
	Height    int // ideal
	MaxWidth  int
	MaxHeight int
	FrameRate int
}

// PreferredConstraints is the first negotiation attempt
func PreferredConstraints(facing Facing) Constraints {
	return Constraints{
		Facing:    facing,
		Width:     640,
		Height:    480,
		MaxWidth:  1280,
		MaxHeight: 720,
		FrameRate: 30,
	}
}

// MinimalConstraints is the fallback for devices rejecting the preferred set
func MinimalConstraints(facing Facing) Constraints {
	return Constraints{Facing: facing}
}

// DeviceInfo describes one capture device
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
}

// Permission is the state of camera access
type Permission int

const (
	PermissionGranted Permission = iota
	PermissionDenied
	PermissionPrompt
)

// Device is a capture driver. Failures should wrap the package sentinel errors.
type Device interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	Permission(ctx context.Context) (Permission, error)
	OpenStream(ctx context.Context, c Constraints) (DriverStream, error)
}

// DriverStream is an open device stream
type DriverStream interface {
	// Ready is closed once stream metadata has arrived
	Ready() <-chan struct{}
	// Frame returns the most recent complete frame
	Frame() (image.Image, error)
	// Close releases the device; it may be called more than once
	Close() error
}
