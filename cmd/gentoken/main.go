// Command gentoken issues an admin API token from the local configuration.
// Useful for scripting against a daemon without going through the login
// endpoint.
package main

import (
	"flag"
	"fmt"
	"os"

	"evalgo.org/nspawnium/internal/auth"
	"evalgo.org/nspawnium/internal/config"
)

func main() {
	cfgFile := flag.String("config", "", "config file (default: ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewJWTService(cfg).GenerateToken(cfg.Auth.AdminUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
}
