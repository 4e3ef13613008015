// Package nspawnium is a self-hosted orchestrator for systemd-nspawn
// containers.
//
// # Overview
//
// Nspawnium provisions full-OS Linux containers on a single host: it
// bootstraps a Debian or Ubuntu root filesystem, configures networking and
// access inside the guest, writes a resource-limited host unit, and boots
// the machine. After creation it drives the container lifecycle, forwards
// host ports into guests, and streams guest logs.
//
// The daemon consists of three layers:
//   - API Server: authenticated REST API plus a WebSocket log stream
//   - Provisioning Pipeline: staged container creation with progress jobs
//   - Host Layer: command invoker, rootfs mutator, and machine manager glue
//
// # Architecture
//
//	┌─────────────────┐
//	│  API Server     │
//	│  (Echo REST/WS) │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Provisioning   │◄──────┤  Job Registry   │
//	│  Pipeline       │       │  (progress)     │
//	└────────┬────────┘       └─────────────────┘
//	         │
//	┌────────▼────────┐
//	│  Host Layer     │
//	│  (nspawn/shell) │
//	└─────────────────┘
//
// # Usage
//
// Start the daemon:
//
//	nspawnium server --config /etc/nspawnium/config.yaml
//
// Hash an admin password for the config file:
//
//	nspawnium hash 'correct horse battery'
//
// Show the effective configuration:
//
//	nspawnium config show
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (./config.yaml, /etc/nspawnium/config.yaml)
//   - Environment variables (NSP_ prefix)
//   - .env file
//
// Example configuration:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8080
//	paths:
//	  machines_dir: /var/lib/machines
//	  units_dir: /etc/systemd/nspawn
//	  state_dir: /var/lib/nspawnium
//	network:
//	  bridge: br0
//	auth:
//	  admin_user: admin
//	  admin_password_hash: "$2a$10$..."
//
// # API Endpoints
//
// Containers:
//   - POST   /api/v1/containers                - Create container (returns job)
//   - GET    /api/v1/containers                - List containers
//   - GET    /api/v1/containers/:name          - Inspect container
//   - POST   /api/v1/containers/:name/start    - Start container
//   - POST   /api/v1/containers/:name/stop     - Stop container (?force=true)
//   - POST   /api/v1/containers/:name/restart  - Restart container
//   - DELETE /api/v1/containers/:name          - Delete container
//   - GET    /api/v1/containers/:name/logs     - Fetch journal lines
//
// Creation jobs:
//   - GET    /api/v1/jobs               - List jobs
//   - GET    /api/v1/jobs/:name         - Get job progress
//   - POST   /api/v1/jobs/:name/cancel  - Request cancellation
//   - DELETE /api/v1/jobs/:name         - Acknowledge a finished job
//
// Network:
//   - GET    /api/v1/network/bridge        - Bridge state
//   - GET    /api/v1/network/forwards      - List port forwards
//   - POST   /api/v1/network/forwards      - Add port forward
//   - DELETE /api/v1/network/forwards/:id  - Remove port forward
//
// System:
//   - GET /api/v1/system                       - Host snapshot and version
//   - GET /api/v1/ws/containers/:name/logs     - WebSocket log stream
//
// # Technology Stack
//
//   - Go 1.21+
//   - Echo v4 (Web framework)
//   - systemd-nspawn / machinectl (Container runtime)
//   - debootstrap (Root filesystem bootstrap)
//   - GORM + SQLite (Container records)
//   - Cobra / Viper (CLI and configuration)
package nspawnium
