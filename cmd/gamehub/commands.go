// cmd/gamehub/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/gamehub/internal/game/tictactoe"
	"github.com/jason-s-yu/gamehub/internal/game/uno"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/session"
)

const helpText = `commands:
  start                 deal a round (host)
  move <cell>           tic-tac-toe: mark cell 0-8
  play <n> [color]      uno: play card n of your hand
  draw | uno | color <c>
  act <TYPE> [json]     send any game action
  name <new name>       rename yourself
  opt <key> <value>     change an option (host, lobby)
  lobby                 back to the lobby (host)
  leave                 quit`

var errUsage = errors.New("bad command, try help")

type commandKind int

const (
	cmdNone commandKind = iota
	cmdHelp
	cmdStart
	cmdAction
	cmdName
	cmdOption
	cmdLobby
	cmdLeave
)

type command struct {
	kind    commandKind
	action  models.GameAction
	name    string
	options models.Options
}

// parseCommand turns one input line into a command. v supplies the hand
// for card indexes.
func parseCommand(line string, v session.View) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{kind: cmdNone}, nil
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "start":
		return command{kind: cmdStart}, nil
	case "lobby":
		return command{kind: cmdLobby}, nil
	case "leave", "quit", "exit":
		return command{kind: cmdLeave}, nil
	case "name":
		if len(args) == 0 {
			return command{}, errUsage
		}
		return command{kind: cmdName, name: strings.Join(args, " ")}, nil
	case "opt":
		if len(args) != 2 {
			return command{}, errUsage
		}
		return command{kind: cmdOption, options: models.Options{args[0]: optionValue(args[1])}}, nil
	case "move":
		if len(args) != 1 {
			return command{}, errUsage
		}
		cell, err := strconv.Atoi(args[0])
		if err != nil {
			return command{}, errUsage
		}
		return actionCommand(tictactoe.ActionMove, cell)
	case "play":
		return playCommand(args, v)
	case "draw":
		return actionCommand(uno.ActionDrawCard, nil)
	case "uno":
		return actionCommand(uno.ActionSayUno, nil)
	case "color":
		if len(args) != 1 {
			return command{}, errUsage
		}
		return actionCommand(uno.ActionChooseColor, uno.ChooseColor{Color: uno.Color(strings.ToLower(args[0]))})
	case "act":
		if len(args) == 0 {
			return command{}, errUsage
		}
		a := models.GameAction{Type: args[0]}
		if len(args) > 1 {
			raw := strings.Join(args[1:], " ")
			if !json.Valid([]byte(raw)) {
				return command{}, fmt.Errorf("payload is not JSON: %s", raw)
			}
			a.Payload = json.RawMessage(raw)
		}
		return command{kind: cmdAction, action: a}, nil
	}
	return command{}, errUsage
}

func actionCommand(actionType string, payload interface{}) (command, error) {
	a, err := models.NewGameAction(actionType, payload)
	if err != nil {
		return command{}, err
	}
	return command{kind: cmdAction, action: a}, nil
}

func playCommand(args []string, v session.View) (command, error) {
	if len(args) == 0 || len(args) > 2 {
		return command{}, errUsage
	}
	st, ok := v.GameState.(*uno.State)
	if !ok {
		return command{}, errors.New("no uno round running")
	}
	hand := st.PlayerHands[v.SelfID]
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(hand) {
		return command{}, fmt.Errorf("pick a card between 0 and %d", len(hand)-1)
	}
	p := uno.PlayCard{Card: hand[n]}
	if len(args) == 2 {
		p.ChosenColor = uno.Color(strings.ToLower(args[1]))
	}
	return actionCommand(uno.ActionPlayCard, p)
}

// optionValue reads numbers and booleans as JSON, anything else as text.
func optionValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// execute runs one input line against the session.
func execute(s *session.Session, line string) (bool, error) {
	cmd, err := parseCommand(line, s.View())
	if err != nil {
		return false, err
	}
	switch cmd.kind {
	case cmdHelp:
		fmt.Println(helpText)
	case cmdStart:
		return false, s.StartGame()
	case cmdAction:
		return false, s.PerformAction(cmd.action)
	case cmdName:
		return false, s.SetUsername(cmd.name)
	case cmdOption:
		return false, s.SetOptions(cmd.options)
	case cmdLobby:
		return false, s.ReturnToLobby()
	case cmdLeave:
		return true, nil
	}
	return false, nil
}
