package rootfs

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GehirnInc/crypt/sha512_crypt"
)

const saltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789./"

// SetRootPassword writes a SHA-512 crypt hash of password into the rootfs
// shadow file. The guest is never booted and no in-guest password tooling
// runs; the shadow line is edited in place on the host.
func (m *Mutator) SetRootPassword(root, password string) error {
	passwd, err := os.ReadFile(filepath.Join(root, "etc", "passwd"))
	if err != nil {
		return fmt.Errorf("read passwd: %w", err)
	}
	if !hasRootEntry(string(passwd)) {
		return fmt.Errorf("no root entry in guest passwd")
	}

	shadowPath := filepath.Join(root, "etc", "shadow")
	shadow, err := os.ReadFile(shadowPath)
	if err != nil {
		return fmt.Errorf("read shadow: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	days := int(time.Now().UTC().Unix() / 86400)

	lines := strings.Split(strings.TrimRight(string(shadow), "\n"), "\n")
	replaced := false
	for i, line := range lines {
		if !strings.HasPrefix(line, "root:") {
			continue
		}
		fields := strings.Split(line, ":")
		for len(fields) < 9 {
			fields = append(fields, "")
		}
		fields[1] = hash
		fields[2] = fmt.Sprintf("%d", days)
		lines[i] = strings.Join(fields[:9], ":")
		replaced = true
		break
	}
	if !replaced {
		entry := fmt.Sprintf("root:%s:%d:0:99999:7:::", hash, days)
		lines = append([]string{entry}, lines...)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := writeFile(shadowPath, []byte(content), 0o640); err != nil {
		return fmt.Errorf("write shadow: %w", err)
	}
	if os.Geteuid() == 0 {
		if err := os.Chown(shadowPath, 0, 0); err != nil {
			return fmt.Errorf("chown shadow: %w", err)
		}
	}
	return nil
}

func hasRootEntry(passwd string) bool {
	for _, line := range strings.Split(passwd, "\n") {
		if strings.HasPrefix(line, "root:") {
			return true
		}
	}
	return false
}

// hashPassword produces a $6$ crypt hash with a fresh random salt.
func hashPassword(password string) (string, error) {
	salt, err := randomSalt(sha512_crypt.SaltLenMax)
	if err != nil {
		return "", err
	}
	c := sha512_crypt.New()
	hash, err := c.Generate([]byte(password), []byte("$6$"+salt))
	if err != nil {
		return "", fmt.Errorf("crypt: %w", err)
	}
	return hash, nil
}

func randomSalt(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = saltChars[int(b)%len(saltChars)]
	}
	return string(out), nil
}
