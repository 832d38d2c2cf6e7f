//go:build !nogpu

package gfx2d

import (
	_ "github.com/gogpu/gfx2d/backend/opengl"
	_ "github.com/gogpu/gfx2d/backend/vulkan"
	_ "github.com/gogpu/gfx2d/backend/webgpu"
)
