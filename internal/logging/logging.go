// Package logging builds the process-wide structured logger from config.
package logging

import (
	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/config"
)

// New returns a logrus logger configured with the requested level and
// format. Unknown values fall back to info and json.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}
