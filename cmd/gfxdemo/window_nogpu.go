//go:build nogpu

package main

import (
	"errors"

	"github.com/gogpu/gfx2d"
)

func runWindow(gfx2d.Config, string, int, int) error {
	return errors.New("built with nogpu: only -headless is available")
}
