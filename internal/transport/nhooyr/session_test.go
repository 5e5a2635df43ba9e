package nhooyr_test

import (
	"testing"

	"github.com/omochice/syncws/internal/transport/nhooyr"
	"github.com/omochice/syncws/internal/transport/transporttest"
)

func TestEngine(t *testing.T) {
	transporttest.Run(t, nhooyr.New())
}

func TestEngine_Name(t *testing.T) {
	if name := nhooyr.New().Name(); name != "nhooyr" {
		t.Errorf("Name() = %q, want %q", name, "nhooyr")
	}
}
