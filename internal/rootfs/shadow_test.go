package rootfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nspawnium/internal/invoker"
)

func testMutator() *Mutator {
	return NewMutator(invoker.NewFake(), testLogger())
}

func seedGuest(t *testing.T, shadowLines string) string {
	t.Helper()
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	require.NoError(t, os.MkdirAll(etc, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "passwd"),
		[]byte("root:x:0:0:root:/root:/bin/bash\ndaemon:x:1:1::/usr/sbin:/usr/sbin/nologin\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "shadow"), []byte(shadowLines), 0o640))
	return root
}

func rootShadowLine(t *testing.T, root string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "etc", "shadow"))
	require.NoError(t, err)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "root:") {
			return strings.Split(line, ":")
		}
	}
	t.Fatal("no root line in shadow")
	return nil
}

func TestSetRootPasswordReplacesExistingEntry(t *testing.T) {
	root := seedGuest(t, "root:*:19000:0:99999:7:::\ndaemon:*:19000:0:99999:7:::\n")
	m := testMutator()

	require.NoError(t, m.SetRootPassword(root, "correct horse battery"))

	fields := rootShadowLine(t, root)
	require.Len(t, fields, 9)
	assert.True(t, strings.HasPrefix(fields[1], "$6$"), "hash should use SHA-512 crypt, got %q", fields[1])
	assert.NotEqual(t, "19000", fields[2], "last-change days should be refreshed")

	// The stored hash must verify against the submitted password.
	c := sha512_crypt.New()
	require.NoError(t, c.Verify(fields[1], []byte("correct horse battery")))
	require.Error(t, c.Verify(fields[1], []byte("wrong password")))

	// Other entries survive untouched.
	data, err := os.ReadFile(filepath.Join(root, "etc", "shadow"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "daemon:*:19000:0:99999:7:::")
}

func TestSetRootPasswordAddsMissingEntry(t *testing.T) {
	root := seedGuest(t, "daemon:*:19000:0:99999:7:::\n")
	m := testMutator()

	require.NoError(t, m.SetRootPassword(root, "another secret pw"))

	fields := rootShadowLine(t, root)
	require.Len(t, fields, 9)
	assert.Equal(t, "0", fields[3])
	assert.Equal(t, "99999", fields[4])
}

func TestSetRootPasswordShadowMode(t *testing.T) {
	root := seedGuest(t, "root:*:19000:0:99999:7:::\n")
	m := testMutator()

	require.NoError(t, m.SetRootPassword(root, "mode check pw"))

	fi, err := os.Stat(filepath.Join(root, "etc", "shadow"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestSetRootPasswordRequiresRootUser(t *testing.T) {
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	require.NoError(t, os.MkdirAll(etc, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "passwd"),
		[]byte("daemon:x:1:1::/usr/sbin:/usr/sbin/nologin\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "shadow"), []byte("daemon:*:1:0:99999:7:::\n"), 0o640))

	err := testMutator().SetRootPassword(root, "whatever pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no root entry")
}

func TestHashPasswordUsesFreshSalt(t *testing.T) {
	h1, err := hashPassword("same password")
	require.NoError(t, err)
	h2, err := hashPassword("same password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
