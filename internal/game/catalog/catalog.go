// internal/game/catalog/catalog.go
package catalog

import (
	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/game/tictactoe"
	"github.com/jason-s-yu/gamehub/internal/game/uno"
)

// Default returns a registry with every built-in game.
func Default() *game.Registry {
	r, err := game.NewRegistry(
		tictactoe.New(nil),
		uno.New(nil),
	)
	if err != nil {
		// the built-in table is static; a failure here is a programming error
		panic(err)
	}
	return r
}
