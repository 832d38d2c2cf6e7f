//go:build !nogpu

package main

import (
	"context"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/gfx2d"
	"github.com/gogpu/gfx2d/backend"
)

func init() {
	// GLFW and GL contexts are bound to the main thread.
	runtime.LockOSThread()
}

func runWindow(cfg gfx2d.Config, configPath string, width, height int) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	if cfg.Backend == "" {
		cfg.Backend = backend.KindOpenGL
	}
	if cfg.Backend == backend.KindOpenGL {
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	} else {
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	}
	win, err := glfw.CreateWindow(width, height, "gfxdemo ("+string(cfg.Backend)+")", nil, nil)
	if err != nil {
		return err
	}
	defer win.Destroy()

	r, err := gfx2d.New(win, cfg)
	if err != nil {
		return err
	}
	defer r.Close()
	if cfg.Backend == backend.KindVulkan || cfg.Backend == backend.KindSoftware {
		gfx2d.Logger().Info("backend renders offscreen without a host surface", "backend", cfg.Backend)
	}

	resized := make(chan [2]int, 1)
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		select {
		case <-resized:
		default:
		}
		resized <- [2]int{w, h}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads := make(chan gfx2d.Config, 1)
	if configPath != "" {
		go func() {
			err := gfx2d.WatchConfig(ctx, configPath, func(c gfx2d.Config, err error) {
				if err != nil {
					gfx2d.Logger().Warn("config reload rejected", "err", err)
					return
				}
				select {
				case reloads <- c:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				gfx2d.Logger().Warn("config watch stopped", "err", err)
			}
		}()
	}

	sc, err := newScene(r.Textures())
	if err != nil {
		return err
	}
	start := time.Now()
	for !win.ShouldClose() {
		glfw.PollEvents()
		select {
		case sz := <-resized:
			if sz[0] > 0 && sz[1] > 0 {
				if err := r.Resize(sz[0], sz[1]); err != nil {
					return err
				}
			}
		case c := <-reloads:
			restart, err := r.Apply(c)
			if err != nil {
				gfx2d.Logger().Warn("config not applied", "err", err)
			} else if restart {
				gfx2d.Logger().Info("config change needs a restart", "backend", c.Backend)
			}
		default:
		}
		if err := sc.draw(ctx, r, float32(time.Since(start).Seconds())); err != nil {
			return err
		}
	}
	return nil
}
