// Command silk is the CLI entry point.
//
// Silk runs one side of a peer-to-peer session over WebRTC DataChannels:
// a signaling hub, a host that authenticates peers and relays chat, or a
// client that logs in to a host and chats through it.
//
// It can be launched interactively (no flags) or non-interactively via a
// YAML config file (--config) and CLI flags, flags taking precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"github.com/1ureka/silk/internal/app"
	"github.com/1ureka/silk/internal/config"
	"github.com/1ureka/silk/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.StringP("config", "c", "", "YAML config file")
	role := flag.String("role", "", "Role: signal, host or client")
	ip := flag.String("ip", "", "Signaling server IP (host/client)")
	port := flag.Uint16P("port", "p", 0, "Signaling server port (host/client), 1~65535")
	local := flag.Bool("local", false, "Use a signaling server on this machine (host starts one)")
	listen := flag.String("listen", "", "Signaling bind address (signal only)")
	tickRate := flag.Int("tick-rate", 0, "Ticks per second (host/client)")
	username := flag.StringP("username", "u", "", "Guest username (client only)")
	token := flag.String("token", "", "Access token for a registered login (client only)")
	character := flag.String("character", "", "Character to play with --token (client only)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = config.Role(*role)
		case "ip":
			cfg.Signaling.IP = *ip
		case "port":
			cfg.Signaling.Port = *port
		case "local":
			cfg.Signaling.Local = *local
		case "listen":
			cfg.Listen = *listen
		case "tick-rate":
			cfg.TickRate = *tickRate
		case "username":
			cfg.Auth.Username = *username
		case "token":
			cfg.Auth.AccessToken = *token
		case "character":
			cfg.Auth.Character = *character
		case "debug":
			cfg.Debug = *debugMode
		}
	})

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Silk — v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No role anywhere → interactive mode.
		askInteractive(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, app.ErrDisconnected) {
			util.LogWarning("%v", err)
			os.Exit(2)
		}
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed session")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

func run(ctx context.Context, cfg config.Config) error {
	switch cfg.Role {
	case config.RoleSignal:
		return app.RunSignal(ctx, cfg.Listen)
	case config.RoleHost:
		return app.RunHost(ctx, cfg)
	default:
		return app.RunClient(ctx, cfg, os.Stdin)
	}
}

// askInteractive fills cfg from prompts when no role was given.
func askInteractive(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host   — Start a session on this machine",
			"Client — Join a remote host",
			"Signal — Run a standalone signaling server",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Host"):
		cfg.Role = config.RoleHost
		cfg.Signaling = config.Signaling{Local: true, Port: askPort("Signaling port to listen on (1 ~ 65535)")}
	case strings.HasPrefix(role, "Signal"):
		cfg.Role = config.RoleSignal
		cfg.Listen = fmt.Sprintf(":%d", askPort("Signaling port to listen on (1 ~ 65535)"))
	default:
		cfg.Role = config.RoleClient
		cfg.Signaling = config.Signaling{IP: askIP(), Port: askPort("Signaling port (1 ~ 65535)")}
		name, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Username (default: guest)").
			Show()
		cfg.Auth = config.Auth{Username: strings.TrimSpace(name)}
		if cfg.Auth.Username == "" {
			cfg.Auth.Username = "guest"
		}
		pterm.Println()
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) uint16 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
		if err == nil && port >= 1 {
			pterm.Println()
			return uint16(port)
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askIP prompts the user for the signaling server's IP until a valid one is
// entered.
func askIP() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling server IP (e.g. 127.0.0.1)").
			Show()

		ip, err := netip.ParseAddr(strings.TrimSpace(raw))
		if err == nil {
			pterm.Println()
			return ip.String()
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter an IPv4 or IPv6 address")
	}
}
