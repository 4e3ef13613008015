package invoker

import (
	"strings"
	"sync"
)

const redacted = "[redacted]"

// Scrubber removes registered secret values from strings before they reach
// logs, error messages, or captured command output.
type Scrubber struct {
	mu      sync.RWMutex
	secrets []string
}

func NewScrubber() *Scrubber {
	return &Scrubber{}
}

// Add registers a secret. Empty and very short values are ignored so the
// scrubber never mangles ordinary output.
func (s *Scrubber) Add(value string) {
	if len(value) < 4 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = append(s.secrets, value)
}

// Redact replaces every registered secret occurring in text.
func (s *Scrubber) Redact(text string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, secret := range s.secrets {
		text = strings.ReplaceAll(text, secret, redacted)
	}
	return text
}
