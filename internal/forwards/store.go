// Package forwards keeps the persistent set of port-forward rules and the
// firewall DNAT entries derived from them in lockstep. All mutations
// serialize under one store mutex.
package forwards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/models"
)

// AddressResolver looks up the current IPv4 address of a running container.
type AddressResolver interface {
	PrimaryAddress(ctx context.Context, name string) (string, error)
}

// storedRule is the on-disk shape: the rule plus the container address the
// DNAT entry was installed with.
type storedRule struct {
	models.PortForwardRule
	ContainerIP string `json:"container_ip"`
}

// Store is the disk-backed port-forward rule set.
type Store struct {
	path     string
	inv      invoker.Invoker
	resolver AddressResolver
	log      *logrus.Entry

	mu    sync.Mutex
	rules []storedRule
}

// NewStore loads the rule file at path, creating state from scratch when
// the file does not exist yet.
func NewStore(path string, inv invoker.Invoker, resolver AddressResolver, log *logrus.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		inv:      inv,
		resolver: resolver,
		log:      log.WithField("component", "forwards"),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read forward rules: %w", err)
	}
	if err := json.Unmarshal(raw, &s.rules); err != nil {
		return nil, fmt.Errorf("parse forward rules: %w", err)
	}
	return s, nil
}

// List returns all rules.
func (s *Store) List() []models.PortForwardRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PortForwardRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.PortForwardRule)
	}
	return out
}

// Add validates the rule, installs its DNAT entry, and persists it. The
// (host port, protocol) pair must be free.
func (s *Store) Add(ctx context.Context, rule models.PortForwardRule) (*models.PortForwardRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "", err, "invalid forward rule")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rules {
		if existing.HostPort == rule.HostPort && existing.Protocol == rule.Protocol {
			return nil, errdefs.Newf(errdefs.KindRuleConflict,
				"host port %d/%s already forwarded to %q", rule.HostPort, rule.Protocol, existing.ContainerID)
		}
	}

	ip, err := s.resolver.PrimaryAddress(ctx, rule.ContainerID)
	if err != nil {
		return nil, err
	}

	rule.ID = models.GenerateID("fwd")
	stored := storedRule{PortForwardRule: rule, ContainerIP: ip}

	if err := s.firewall(ctx, "-A", stored); err != nil {
		return nil, err
	}
	s.rules = append(s.rules, stored)
	if err := s.persist(); err != nil {
		// Roll the DNAT entry back so firewall and file stay in sync.
		s.rules = s.rules[:len(s.rules)-1]
		if delErr := s.firewall(ctx, "-D", stored); delErr != nil {
			s.log.WithError(delErr).Error("cannot roll back firewall rule")
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"rule":      rule.ID,
		"host_port": rule.HostPort,
		"container": rule.ContainerID,
	}).Info("forward rule added")
	return &rule, nil
}

// Remove deletes the DNAT entry and drops the persisted rule.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.rules {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errdefs.Newf(errdefs.KindNotFound, "no forward rule %q", id)
	}

	if err := s.firewall(ctx, "-D", s.rules[idx]); err != nil {
		return err
	}
	s.rules = append(s.rules[:idx], s.rules[idx+1:]...)
	if err := s.persist(); err != nil {
		return err
	}
	s.log.WithField("rule", id).Info("forward rule removed")
	return nil
}

// Reconcile re-installs missing DNAT entries for all persisted rules. Runs
// at daemon start, after a reboot wiped the nat table.
func (s *Store) Reconcile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		res, err := s.inv.Run(ctx, invoker.Request{
			Stage:   "forwards",
			Argv:    dnatArgs("-C", rule),
			Timeout: invoker.TimeoutFirewall,
		})
		if err != nil {
			s.log.WithField("rule", rule.ID).WithError(err).Warn("reconcile check failed")
			continue
		}
		if res.ExitCode == 0 {
			continue
		}
		if err := s.firewall(ctx, "-A", rule); err != nil {
			s.log.WithField("rule", rule.ID).WithError(err).Warn("reconcile install failed")
		}
	}
}

func (s *Store) firewall(ctx context.Context, action string, rule storedRule) error {
	res, err := s.inv.Run(ctx, invoker.Request{
		Stage:   "forwards",
		Argv:    dnatArgs(action, rule),
		Timeout: invoker.TimeoutFirewall,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errdefs.Newf(errdefs.KindHostError, "iptables %s exited %d: %s", action, res.ExitCode, res.Stderr)
	}
	return nil
}

func dnatArgs(action string, rule storedRule) []string {
	return []string{
		"iptables", "-t", "nat", action, "PREROUTING",
		"-p", string(rule.Protocol),
		"--dport", strconv.Itoa(rule.HostPort),
		"-j", "DNAT",
		"--to-destination", rule.ContainerIP + ":" + strconv.Itoa(rule.ContainerPort),
		"-m", "comment", "--comment", "nspawnium:" + rule.ID,
	}
}

// persist writes the rule file atomically via a temp file rename.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.rules, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
