package imagesource

import (
	"context"
	"errors"
)

// Driver errors. Devices return (or wrap) these so failures can be told apart.
var (
	ErrUnsupported      = errors.New("capture not supported")
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceBusy       = errors.New("camera in use")
	ErrOverconstrained  = errors.New("constraints not satisfiable")
	ErrDeviceNotFound   = errors.New("camera not found")
	ErrSecurity         = errors.New("camera blocked by policy")
	ErrAborted          = errors.New("camera access aborted")
)

// Stream and capture errors
var (
	ErrStreamTimeout = errors.New("stream metadata timeout")
	ErrStreamClosed  = errors.New("stream closed")
	ErrFrameNotReady = errors.New("frame not ready")
	ErrFrameTooSmall = errors.New("captured image too small")
)

// Upload errors
var (
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// Reason names why a camera cannot be used
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnsupported      Reason = "unsupported"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonPermissionPrompt Reason = "permission_prompt"
	ReasonDeviceBusy       Reason = "device_busy"
	ReasonOverconstrained  Reason = "overconstrained"
	ReasonNotFound         Reason = "not_found"
	ReasonSecurity         Reason = "security"
	ReasonAborted          Reason = "aborted"
	ReasonTimeout          Reason = "timeout"
	ReasonFrameNotReady    Reason = "frame_not_ready"
	ReasonFrameTooSmall    Reason = "frame_too_small"
	ReasonStreamClosed     Reason = "stream_closed"
	ReasonUnknown          Reason = "unknown"
)

var reasonMessages = map[Reason]string{
	ReasonUnsupported:      "Camera capture is not supported on this device.",
	ReasonPermissionDenied: "Camera permission denied. Please allow camera access and try again.",
	ReasonPermissionPrompt: "Camera access has not been granted yet and will be requested when scanning starts.",
	ReasonDeviceBusy:       "Camera is already in use by another application.",
	ReasonOverconstrained:  "Camera does not support the requested quality settings.",
	ReasonNotFound:         "No camera found on this device.",
	ReasonSecurity:         "Camera access blocked due to security restrictions.",
	ReasonAborted:          "Camera access was interrupted.",
	ReasonTimeout:          "Camera did not start in time. Please try again.",
	ReasonFrameNotReady:    "Camera is not ready yet. Please wait for it to load.",
	ReasonFrameTooSmall:    "Captured image is too small. Please try again.",
	ReasonStreamClosed:     "Camera was stopped before the photo was taken.",
	ReasonUnknown:          "Camera not available.",
}

// Message returns the user-facing text for r
func (r Reason) Message() string {
	return reasonMessages[r]
}

// ReasonFor classifies a driver or stream error
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrDeviceBusy):
		return ReasonDeviceBusy
	case errors.Is(err, ErrOverconstrained):
		return ReasonOverconstrained
	case errors.Is(err, ErrDeviceNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrSecurity):
		return ReasonSecurity
	case errors.Is(err, ErrStreamTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrFrameNotReady):
		return ReasonFrameNotReady
	case errors.Is(err, ErrFrameTooSmall):
		return ReasonFrameTooSmall
	case errors.Is(err, ErrStreamClosed):
		return ReasonStreamClosed
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonAborted
	}
	return ReasonUnknown
}
