package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/silk/internal/config"
	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/router"
	"github.com/1ureka/silk/internal/session"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

// ErrDisconnected is returned by RunClient when the session ends on its
// own. The wrapping error carries the reason.
var ErrDisconnected = errors.New("disconnected from host")

// RunClient orchestrates the full client lifecycle:
//  1. Queue a Connect for the configured signaling address
//  2. Tick the session until the host accepts or denies us
//  3. Relay stdin lines to the host and print chats from it
//  4. Return once the session drops or ctx is cancelled
func RunClient(ctx context.Context, cfg config.Config, in io.Reader) error {
	opener := transport.WebRTCOpener(transport.Options{ICEServers: cfg.ICEServers})
	return runClient(ctx, cfg, opener, in)
}

func runClient(ctx context.Context, cfg config.Config, opener transport.Opener, in io.Reader) error {
	addr, err := cfg.Addr()
	if err != nil {
		return err
	}

	// ── 1. Wire session + routers ──────────────────────────────────────
	reg := router.NewRegistry()
	client, err := session.NewClient(reg, opener)
	if err != nil {
		return err
	}
	chat, err := router.Register[protocol.Chat](reg)
	if err != nil {
		return err
	}

	lines := readLines(ctx, in)
	username := ""

	client.Connect(addr, authFor(cfg.Auth))
	util.LogInfo("connecting to %s", addr)
	util.StartStatsReporter(ctx)

	// ── 2. Tick until the session ends ─────────────────────────────────
	tick := func() error {
		return client.Tick(ctx, func() error {
			for _, ev := range client.Events() {
				switch ev := ev.(type) {
				case session.IDAssigned:
					util.LogDebug("signaling assigned id %s", ev.ID)
				case session.ConnectedToHost:
					username = ev.Username
					util.LogSuccess("connected to host %s as %s", ev.Host.Short(), ev.Username)
				case session.DisconnectedFromHost:
					if ev.Reason == "" {
						return ErrDisconnected
					}
					return fmt.Errorf("%w: %s", ErrDisconnected, ev.Reason)
				}
			}

			for _, msg := range chat.Incoming() {
				pterm.Printfln("%s: %s", msg.Message.From, msg.Message.Text)
			}

			if client.State() != session.Connected {
				return nil
			}
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						lines = nil
						return nil
					}
					if err := chat.ReliableToHost(protocol.Chat{From: username, Text: line}); err != nil {
						util.LogWarning("chat not sent: %v", err)
					}
				default:
					return nil
				}
			}
		})
	}

	err = RunLoop(ctx, cfg.TickRate, tick)
	if client.State() != session.Disconnected {
		client.Disconnect("")
		_ = client.Tick(ctx, nil)
	}
	return err
}

func authFor(a config.Auth) session.AuthenticationRequest {
	if a.Registered() {
		return session.RegisteredAuth(a.AccessToken, a.Character)
	}
	return session.GuestAuth(a.Username)
}

// readLines streams non-empty trimmed lines from r until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string, 16)
	if r == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
