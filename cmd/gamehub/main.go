// cmd/gamehub/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jason-s-yu/gamehub/internal/config"
	"github.com/jason-s-yu/gamehub/internal/game/catalog"
	"github.com/jason-s-yu/gamehub/internal/game/tictactoe"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/session"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/backend"
	_ "github.com/joho/godotenv/autoload"
	"github.com/skip2/go-qrcode"
)

func main() {
	name := flag.String("name", "", "display name")
	gameID := flag.String("game", "", "game id to join; empty hosts a new game")
	kind := flag.String("kind", tictactoe.ID, "game to host")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()
	logger.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open %s store: %v", cfg.SignalBackend, err)
	}
	defer closeStore()

	registry := catalog.Default()
	scfg := session.Config{
		Channel:  signaling.NewChannel(store, logger),
		Registry: registry,
		Factory:  peer.PionFactory(cfg.STUNURLs),
		Logger:   logger,
		Username: *name,
	}

	var s *session.Session
	if *gameID == "" {
		s, err = session.CreateGame(ctx, scfg, *kind)
		if err != nil {
			logger.Fatalf("create game: %v", err)
		}
		printJoinCode(s.ID())
	} else {
		s, err = session.JoinGame(ctx, scfg, strings.ToUpper(strings.TrimSpace(*gameID)))
		if err != nil {
			fmt.Fprintln(os.Stderr, session.Notice(err))
			os.Exit(1)
		}
	}

	views, cancelViews := s.Subscribe()
	defer cancelViews()
	go func() {
		for v := range views {
			render(os.Stdout, v)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-s.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := execute(s, line)
			if err != nil {
				fmt.Fprintln(os.Stdout, "error:", err)
			}
			if quit {
				break loop
			}
		}
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Leave(leaveCtx); err != nil {
		logger.Warnf("leave: %v", err)
	}
	if n := s.View().Notice; n != "" {
		fmt.Fprintln(os.Stdout, n)
	}
}

func printJoinCode(id string) {
	fmt.Printf("Game code: %s\n", id)
	q, err := qrcode.New(id, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Println(q.ToString(false))
}
