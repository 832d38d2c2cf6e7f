package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewDefaultsToGOMAXPROCS(t *testing.T) {
	p := New(0)
	defer p.Close()
	if got, want := p.Workers(), runtime.GOMAXPROCS(0); got != want {
		t.Errorf("Workers() = %d, want %d", got, want)
	}
}

func TestRunExecutesEveryTask(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int64
	tasks := make([]func(), 200)
	for i := range tasks {
		tasks[i] = func() { n.Add(1) }
	}
	p.Run(tasks)
	if n.Load() != 200 {
		t.Errorf("ran %d tasks, want 200", n.Load())
	}
}

func TestRunAfterCloseRunsInline(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close()

	ran := 0
	p.Run([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran %d tasks after Close, want 2", ran)
	}
}

func TestBandsCoverEveryRowOnce(t *testing.T) {
	p := New(3)
	defer p.Close()

	for _, tt := range []struct{ height, minRows int }{
		{1, 1}, {7, 1}, {100, 16}, {100, 200}, {64, 0},
	} {
		var mu sync.Mutex
		seen := make([]int, tt.height)
		p.Bands(tt.height, tt.minRows, func(y0, y1 int) {
			mu.Lock()
			defer mu.Unlock()
			for y := y0; y < y1; y++ {
				seen[y]++
			}
		})
		for y, c := range seen {
			if c != 1 {
				t.Fatalf("height=%d minRows=%d: row %d visited %d times", tt.height, tt.minRows, y, c)
			}
		}
	}
}

func TestBandsRespectMinRows(t *testing.T) {
	p := New(8)
	defer p.Close()

	var bands atomic.Int32
	p.Bands(32, 16, func(_, _ int) { bands.Add(1) })
	if bands.Load() != 2 {
		t.Errorf("bands = %d, want 2", bands.Load())
	}
}
