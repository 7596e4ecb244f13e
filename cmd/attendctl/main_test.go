package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniattend/internal/auth"
	"uniattend/internal/store"
	"uniattend/internal/system"
)

func TestRunDemo(t *testing.T) {
	sys := system.New(system.Deps{
		Store:  store.NewMemory(),
		Signer: auth.NewSigner("attendctl", "k", time.Hour),
		Hasher: auth.NewBcrypt(4),
	})
	var out bytes.Buffer
	now := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, runDemo(context.Background(), &out, sys, now))

	text := out.String()
	assert.Contains(t, text, "Seeded demo data")
	assert.Contains(t, text, "User logged in: johndoe (STUDENT)")
	assert.Contains(t, text, "enrolled in MA201 Calculus I")
	assert.Contains(t, text, "CS101 has 4 attendance records:")
	assert.Contains(t, text, "Registration rejected: username johndoe is taken.")
	assert.Contains(t, text, "Registered users: 3")
	assert.Contains(t, text, "User logged out: profsmith")

	out.Reset()
	require.NoError(t, runDemo(context.Background(), &out, sys, now))
	assert.Contains(t, out.String(), "seeding skipped")
	assert.Contains(t, out.String(), "CS101 has 5 attendance records:")
}

func TestDemoStorePath(t *testing.T) {
	tests := []struct {
		backend, path, want string
	}{
		{"bolt", "", filepath.Join("data", "attendctl-demo.bolt")},
		{"sqlite", "", filepath.Join("data", "attendctl-demo.sqlite")},
		{"bolt", "/tmp/x.db", "/tmp/x.db"},
		{"memory", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, demoStorePath(tt.backend, tt.path), tt.backend)
	}
}

func TestDemoCommandBoltDefaultPath(t *testing.T) {
	chdir(t, t.TempDir())
	demoFlags.backend, demoFlags.path = "bolt", ""
	t.Cleanup(func() { demoFlags.backend, demoFlags.path = "memory", "" })

	var out bytes.Buffer
	demoCmd.SetOut(&out)
	demoCmd.SetContext(context.Background())
	require.NoError(t, demoCmd.RunE(demoCmd, nil))
	assert.Contains(t, out.String(), "Seeded demo data")
	assert.FileExists(t, filepath.Join("data", "attendctl-demo.bolt"))
}

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetOut(&out)
	hashPasswordCmd.SetIn(strings.NewReader("pass123\n"))
	hashCost = 4
	require.NoError(t, hashPasswordCmd.RunE(hashPasswordCmd, nil))

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.NewBcrypt(4).Verify(hash, "pass123"))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
