package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runInitConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	// The admin hash and JWT secret stay out of terminal output.
	shown := *cfg
	shown.Auth.AdminPasswordHash = "[redacted]"
	shown.Auth.JWTSecret = "[redacted]"

	data, err := yaml.Marshal(shown)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := `# Nspawnium Configuration

server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 30s
  write_timeout: 30s
  shutdown_timeout: 10s
  debug: false

paths:
  machines_dir: /var/lib/machines
  units_dir: /etc/systemd/nspawn
  state_dir: /var/lib/nspawnium

network:
  bridge: br0

auth:
  admin_user: admin
  # Generate with: nspawnium hash <password>
  admin_password_hash: ""
  jwt_secret: change-me-in-production
  jwt_expiration: 24h

jobs:
  ttl: 1h
  sweep_interval: 5m

logging:
  level: info
  format: json

security:
  rate_limit: 100
  allowed_origins:
    - "*"
`

	if err := os.WriteFile("config.yaml", []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Println("✓ Created config.yaml")
	return nil
}
