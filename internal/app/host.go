package app

import (
	"context"
	"fmt"

	"github.com/1ureka/silk/internal/config"
	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/router"
	"github.com/1ureka/silk/internal/session"
	"github.com/1ureka/silk/internal/signaling"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

// RunHost orchestrates the full host lifecycle:
//  1. Start an embedded signaling server when the address is local
//  2. Open the transport and latch our id
//  3. Answer logins and relay chats to every authenticated peer
//  4. Return once the transport closes or ctx is cancelled
func RunHost(ctx context.Context, cfg config.Config) error {
	addr, err := cfg.Addr()
	if err != nil {
		return err
	}

	// ── 1. Embedded signaling ──────────────────────────────────────────
	if addr.IsLocal() {
		server := signaling.NewServer()
		if _, err := server.Start(fmt.Sprintf(":%d", addr.Port())); err != nil {
			return err
		}
		defer server.Close()
	}

	opener := transport.WebRTCOpener(transport.Options{ICEServers: cfg.ICEServers})
	return runHost(ctx, cfg, opener, addr)
}

func runHost(ctx context.Context, cfg config.Config, opener transport.Opener, addr transport.ConnectionAddr) error {
	// ── 2. Wire session + routers ──────────────────────────────────────
	reg := router.NewRegistry()
	host, err := session.NewHost(reg, authenticatorFor(cfg))
	if err != nil {
		return err
	}
	chat, err := router.Register[protocol.Chat](reg)
	if err != nil {
		return err
	}

	if err := host.Open(ctx, opener, addr); err != nil {
		return err
	}
	defer host.Close()
	util.StartStatsReporter(ctx)

	// ── 3. Tick ────────────────────────────────────────────────────────
	return RunLoop(ctx, cfg.TickRate, func() error {
		return host.Tick(func() error {
			for _, ev := range host.Events() {
				switch ev := ev.(type) {
				case session.IDAssigned:
					util.LogSuccess("hosting as %s", ev.ID)
				case session.PeerLeft:
					util.LogInfo("peer %s left", ev.Peer.Short())
				}
			}

			for _, msg := range chat.Incoming() {
				name, ok := host.Username(msg.From)
				if !ok {
					util.LogDebug("dropping chat from unauthenticated peer %s", msg.From.Short())
					continue
				}
				n := chat.ReliableToAll(protocol.Chat{From: name, Text: msg.Message.Text})
				util.LogDebug("relayed chat from %s to %d peers", name, n)
			}
			return nil
		})
	})
}

func authenticatorFor(cfg config.Config) session.Authenticator {
	if len(cfg.Tokens) == 0 {
		return session.GuestAuthenticator{}
	}
	return session.TokenAuthenticator{Tokens: cfg.Tokens, AllowGuests: cfg.AllowGuests()}
}
