package backend

import (
	"errors"
	"fmt"
)

// Error taxonomy. Adapters wrap the underlying cause so callers can test
// with errors.Is.
var (
	// ErrDeviceInit is returned when no compatible device or driver exists.
	ErrDeviceInit = errors.New("backend: device initialization failed")

	// ErrSurfaceCreation is returned when the presentation surface cannot
	// be created. Fatal at startup, recoverable on resize.
	ErrSurfaceCreation = errors.New("backend: surface creation failed")

	// ErrSurfaceLost means the surface must be recreated. The current
	// frame is skipped; the device and its resources survive.
	ErrSurfaceLost = errors.New("backend: surface lost")

	// ErrDeviceLost is fatal for the session.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrResourceUpload is returned when the backend rejects a buffer or
	// texture allocation. Only that resource is affected.
	ErrResourceUpload = errors.New("backend: resource upload failed")

	// ErrUnsupportedFormat rejects pixel data in an unknown layout.
	ErrUnsupportedFormat = errors.New("backend: unsupported format")

	// ErrInvalidState is returned when an operation is called in a state
	// that does not allow it.
	ErrInvalidState = errors.New("backend: invalid state")

	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Initialize.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// IsFatal reports whether err ends the rendering session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceInit) || errors.Is(err, ErrDeviceLost)
}

// IsRecoverable reports whether the caller can continue after skipping
// the current frame.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSurfaceLost)
}

// Wrap annotates cause with a taxonomy sentinel and the failing operation.
func Wrap(sentinel error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, cause)
}
