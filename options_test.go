package gfx2d

import (
	"testing"

	"github.com/gogpu/gfx2d/backend/backendtest"
)

func TestOptionsApply(t *testing.T) {
	a := backendtest.New()
	host := struct{ name string }{"host"}
	var o options
	for _, opt := range []Option{WithAdapter(a), WithHost(host), WithSize(320, 200)} {
		opt(&o)
	}
	if o.adapter != a {
		t.Error("WithAdapter not applied")
	}
	if o.host != host {
		t.Errorf("host = %v", o.host)
	}
	if o.width != 320 || o.height != 200 {
		t.Errorf("size = %dx%d", o.width, o.height)
	}
}

func TestWithHostReachesAdapter(t *testing.T) {
	a := backendtest.New()
	a.AutoComplete = true
	host := "shared-device"
	r, err := New(nil, DefaultConfig(), WithAdapter(a), WithHost(host), WithSize(8, 8))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if got := a.Options().Host; got != host {
		t.Errorf("Host = %v, want %q", got, host)
	}
}
