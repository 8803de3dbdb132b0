package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/chet-im/chet/internal/app"
	"github.com/chet-im/chet/internal/config"
	"github.com/chet-im/chet/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	serverFlag := flag.String("server", "", "server websocket URL (overrides config)")
	tokenFlag := flag.String("set-token", "", "store a new auth token in the config and exit")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *tokenFlag != "" {
		if err := storeToken(*tokenFlag, *serverFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("token saved")
		return
	}

	fx.New(
		app.Module(app.Params{SessionName: sessionName, ServerURL: *serverFlag}),
		fx.NopLogger,
	).Run()
}

// storeToken updates the config file in place, preserving existing
// fields so a fresh token does not wipe the configured server.
func storeToken(token, serverURL string) error {
	path := session.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		cfg = &config.Config{}
	}
	cfg.Token = token
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	return config.Save(path, cfg)
}
