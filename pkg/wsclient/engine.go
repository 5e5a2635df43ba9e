package wsclient

import (
	"fmt"

	"github.com/omochice/syncws/internal/transport"
	"github.com/omochice/syncws/internal/transport/gobwas"
	"github.com/omochice/syncws/internal/transport/gorilla"
	"github.com/omochice/syncws/internal/transport/nhooyr"
)

// Engine names accepted by Options.Engine.
const (
	EngineGobwas  = "gobwas"
	EngineGorilla = "gorilla"
	EngineNhooyr  = "nhooyr"
)

// Engines lists the supported engine names, default first.
func Engines() []string {
	return []string{EngineGobwas, EngineGorilla, EngineNhooyr}
}

func newEngine(name string) (transport.Engine, error) {
	switch name {
	case "", EngineGobwas:
		return gobwas.New(), nil
	case EngineGorilla:
		return gorilla.New(), nil
	case EngineNhooyr:
		return nhooyr.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}
