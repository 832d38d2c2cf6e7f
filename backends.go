package gfx2d

// The software backend is always available.
import _ "github.com/gogpu/gfx2d/backend/software"
