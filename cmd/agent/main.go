// Package main is the PushGate operator CLI.
//
// It drives the dual-channel subscription lifecycle against a running
// registry using the simulated platform, so operators can verify the
// registry wiring (subscribe, identify, test dispatch) end to end without
// a browser.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"pushgate.io/pushgate/internal/api/middleware"
	"pushgate.io/pushgate/internal/channel"
	"pushgate.io/pushgate/internal/config"
	"pushgate.io/pushgate/internal/coordinator"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/platform"
	"pushgate.io/pushgate/internal/registry"
)

const usage = `usage: agent [flags] <command>

commands:
  status          print combined channel status
  subscribe       establish a web-push subscription and register it
  unsubscribe     revoke the subscription locally and server-side
  toggle          flip the web-push subscription state
  init            initialize the OneSignal channel
  identify        subscribe the OneSignal channel and identify the player
  test <channel>  request a server-side test dispatch (vapid|onesignal)
  vapid-key       fetch the registry's VAPID public key
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agent error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	var (
		userID  = fs.String("user", "operator", "user ID for minted tokens")
		token   = fs.String("token", "", "bearer token (minted from config when empty)")
		message = fs.String("message", "Test notification from PushGate", "test message body")
		kind    = fs.String("type", "test", "test message template kind")
		timeout = fs.Duration("timeout", 30*time.Second, "overall command timeout")
	)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, "console"); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tokens, err := tokenSource(cfg, *token, *userID)
	if err != nil {
		return err
	}
	client := registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, tokens)

	// Simulated platform: permission prompts resolve to granted, the vendor
	// SDK is available immediately and reports push enabled.
	browser := platform.NewMockBrowser()
	bridge := platform.NewMockSDKBridge()
	bridge.PushEnabledValue = true
	bridge.PlayerIDValue = fmt.Sprintf("agent-%s", *userID)

	vapid := channel.NewVAPIDManager(browser, client, channel.VAPIDOptions{
		PublicKey:    cfg.Push.VAPIDPublicKey,
		WorkerScript: cfg.Push.WorkerScript,
		WorkerScope:  cfg.Push.WorkerScope,
	})
	onesignal := channel.NewOneSignalManager(browser, bridge, client, channel.OneSignalOptions{
		AppID:        cfg.OneSignal.AppID,
		PollInterval: cfg.OneSignal.SDKPollInterval,
		PollAttempts: cfg.OneSignal.SDKPollAttempts,
		SettleDelay:  cfg.OneSignal.InitSettleDelay,
	})
	coord := coordinator.New(vapid, onesignal, client)

	switch cmd := fs.Arg(0); cmd {
	case "status":
		return printJSON(coord.Overview())

	case "subscribe":
		if !vapid.RequestPermission(ctx) {
			return fmt.Errorf("notification permission was not granted")
		}
		sub, err := vapid.Subscribe(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("subscribed: %s\n", sub.Endpoint)
		return nil

	case "unsubscribe":
		if _, err := vapid.Subscribe(ctx); err != nil {
			return fmt.Errorf("establish subscription to revoke: %w", err)
		}
		return vapid.Unsubscribe(ctx)

	case "toggle":
		if err := vapid.ToggleSubscription(ctx); err != nil {
			return err
		}
		return printJSON(vapid.Status())

	case "init":
		if err := onesignal.Initialize(ctx); err != nil {
			return err
		}
		return printJSON(onesignal.Status())

	case "identify":
		if err := onesignal.Initialize(ctx); err != nil {
			return err
		}
		if err := onesignal.Subscribe(ctx); err != nil {
			return err
		}
		fmt.Printf("identified player: %s\n", onesignal.PlayerID())
		return nil

	case "test":
		if fs.NArg() < 2 {
			return fmt.Errorf("test requires a channel argument (vapid|onesignal)")
		}
		ch := channel.Channel(fs.Arg(1))
		if err := prepareChannel(ctx, ch, vapid, onesignal); err != nil {
			return err
		}
		return coord.SendTest(ctx, ch, *message, *kind)

	case "vapid-key":
		key, err := client.VAPIDPublicKey(ctx)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil

	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// prepareChannel brings the requested channel to subscribed state so the
// coordinator's precondition check passes.
func prepareChannel(ctx context.Context, ch channel.Channel, vapid *channel.VAPIDManager, onesignal *channel.OneSignalManager) error {
	switch ch {
	case channel.VAPID:
		if vapid.Status().Subscribed {
			return nil
		}
		if !vapid.RequestPermission(ctx) {
			return fmt.Errorf("notification permission was not granted")
		}
		_, err := vapid.Subscribe(ctx)
		return err
	case channel.OneSignal:
		if onesignal.Status().Subscribed {
			return nil
		}
		if err := onesignal.Initialize(ctx); err != nil {
			return err
		}
		return onesignal.Subscribe(ctx)
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
}

// tokenSource returns the bearer token source: the explicit token when
// given, otherwise one minted from the shared signing key.
func tokenSource(cfg *config.Config, explicit, userID string) (registry.TokenSource, error) {
	if explicit != "" {
		return registry.StaticToken(explicit), nil
	}
	token, _, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.JWTExpiresIn,
	}, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	return registry.StaticToken(token), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
