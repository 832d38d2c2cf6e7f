// Command gfxdemo demonstrates the gfx2d rendering core.
//
// With -headless it renders a few frames offscreen and writes the last
// one as a PNG; otherwise it opens a GLFW window and animates the scene
// until the window is closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gfx2d"
	"github.com/gogpu/gfx2d/backend"
)

func main() {
	var (
		width    = flag.Int("width", 800, "framebuffer width")
		height   = flag.Int("height", 600, "framebuffer height")
		renderer = flag.String("renderer", "", "backend: vulkan, opengl, webgpu or software (aliases accepted)")
		config   = flag.String("config", "", "YAML or TOML config file, reloaded on change")
		headless = flag.Bool("headless", false, "render offscreen and write a PNG")
		output   = flag.String("output", "gfxdemo.png", "PNG written in headless mode")
		frames   = flag.Int("frames", 3, "frames rendered in headless mode")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	gfx2d.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := gfx2d.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = gfx2d.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *renderer != "" {
		kind, err := backend.ParseKind(*renderer)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Backend = kind
	}

	if *headless {
		if err := runHeadless(cfg, *width, *height, *frames, *output); err != nil {
			log.Fatalf("Headless render failed: %v", err)
		}
		log.Printf("Demo saved to %s (%dx%d)\n", *output, *width, *height)
		return
	}
	if err := runWindow(cfg, *config, *width, *height); err != nil {
		log.Fatalf("Demo failed: %v", err)
	}
}

func runHeadless(cfg gfx2d.Config, width, height, frames int, output string) error {
	if cfg.Backend == "" {
		cfg.Backend = backend.KindSoftware
	}
	r, err := gfx2d.New(nil, cfg, gfx2d.WithSize(width, height))
	if err != nil {
		return err
	}
	defer r.Close()

	sc, err := newScene(r.Textures())
	if err != nil {
		return err
	}
	ctx := context.Background()
	start := time.Now()
	for i := range max(frames, 1) {
		if err := sc.draw(ctx, r, float32(i)/60); err != nil {
			return err
		}
	}
	w, h, pix, err := r.Snapshot()
	if err != nil {
		return err
	}
	slog.Info("headless frames rendered", "frames", frames, "elapsed", time.Since(start))
	return writePNG(output, &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)})
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
