// htmlfwd-watch attaches to a running htmlfwd-client as an observer,
// prints the endpoint table whenever it changes, and counts pending
// retries down locally between frames.
//
// Lines typed on stdin are sent as commands:
//
//	connect <index>
//	disconnect <index>
//	reload <label>=<host> ...
//
// Usage:
//
//	go run ./cmd/htmlfwd-watch --addr ws://127.0.0.1:8890/observe
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	htmlfwd "github.com/htmlfwd/go-client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr string
	var quiet bool
	flagSet := pflag.NewFlagSet("htmlfwd-watch", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "ws://127.0.0.1:8890/observe", "observer endpoint of htmlfwd-client")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "only print the table, no per-second countdown redraws")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	log.WithField("addr", addr).Info("attached")

	frames := make(chan htmlfwd.ObserverFrame)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var f htmlfwd.ObserverFrame
			if err := json.Unmarshal(data, &f); err != nil {
				log.WithError(err).Warn("bad frame")
				continue
			}
			frames <- f
		}
	}()

	// Console commands. Writes happen only on this goroutine.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd, err := parseInput(scanner.Text())
			if err != nil {
				log.Warn(err)
				continue
			}
			if err := conn.WriteJSON(cmd); err != nil {
				log.WithError(err).Error("send command")
				return
			}
		}
	}()

	var v view
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("observer connection: %w", err)
		case f := <-frames:
			v.apply(f)
			redraw(&v)
		case <-ticker.C:
			v.tick()
			if !quiet {
				redraw(&v)
			}
		}
	}
}

func redraw(v *view) {
	fmt.Fprintf(os.Stdout, "\n%s\n", time.Now().Format(time.TimeOnly))
	v.render(os.Stdout)
}
