// cmd/gamehub/render.go
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jason-s-yu/gamehub/internal/game/tictactoe"
	"github.com/jason-s-yu/gamehub/internal/game/uno"
	"github.com/jason-s-yu/gamehub/internal/session"
)

func render(w io.Writer, v session.View) {
	if v.Ended {
		if v.Notice != "" {
			fmt.Fprintln(w, v.Notice)
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n== %s [%s] %s ==\n", v.GameID, v.GameKind, v.Phase)
	for _, p := range v.Players {
		marker := " "
		if p.ID == v.SelfID {
			marker = "*"
		}
		state := ""
		if st, ok := v.Peers[p.ID]; ok {
			state = " (" + string(st) + ")"
		}
		fmt.Fprintf(&b, " %s %s%s\n", marker, p.Username, state)
	}
	if len(v.Options) > 0 {
		fmt.Fprintf(&b, "options: %v\n", v.Options)
	}

	switch st := v.GameState.(type) {
	case *tictactoe.State:
		renderBoard(&b, st)
	case *uno.State:
		renderUno(&b, st, v)
	}
	if v.StatusText != "" {
		fmt.Fprintln(&b, v.StatusText)
	}
	if v.MyTurn {
		fmt.Fprintln(&b, "your move")
	}
	fmt.Fprint(w, b.String())
}

func renderBoard(b *strings.Builder, st *tictactoe.State) {
	for row := 0; row < 3; row++ {
		cells := make([]string, 3)
		for col := 0; col < 3; col++ {
			i := row*3 + col
			cells[col] = string(st.Board[i])
			if cells[col] == "" {
				cells[col] = fmt.Sprint(i)
			}
		}
		fmt.Fprintf(b, " %s\n", strings.Join(cells, " | "))
	}
}

func renderUno(b *strings.Builder, st *uno.State, v session.View) {
	if n := len(st.DiscardPile); n > 0 {
		top := st.DiscardPile[n-1]
		fmt.Fprintf(b, "top: %s %s (active %s), deck %d\n", top.Color, top.Value, st.ActiveColor, st.DeckSize)
	}
	for i, c := range st.PlayerHands[v.SelfID] {
		fmt.Fprintf(b, " [%d] %s %s\n", i, c.Color, c.Value)
	}
}
