// Package backend defines the contract every graphics backend implements
// and the registry used to select one at runtime.
//
// # Lifecycle
//
// An [Adapter] moves through a fixed set of states:
//
//	Uninitialized -> DeviceReady -> SurfaceReady -> FrameInFlight
//	                                      ^               |
//	                                      |               v
//	                                 SurfaceLost <--------+
//	                                                 Shutdown
//
// Initialize creates the device, CreateSurface binds it to a window (and
// may be called again to resize or recover from SurfaceLost), and each
// frame is BeginFrame, any number of uploads and draws, then EndFrame.
// Calling an operation from the wrong state returns [ErrInvalidState].
//
// # Backend Registration
//
// Adapters register a factory from an init function:
//
//	import _ "github.com/gogpu/gfx2d/backend/software"
//
// and callers select one by [Kind] or take the best available:
//
//	a, err := backend.Open(win, backend.Options{Kind: backend.KindVulkan})
//
// # Frames in flight
//
// Adapters keep up to Options.FramesInFlight frames queued on the GPU.
// Frame serials start at 1 and increase by one per BeginFrame;
// CompletedFrame reports the newest serial the GPU has finished. Anything
// a frame references must stay alive until CompletedFrame reaches it.
package backend
