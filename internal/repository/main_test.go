package repository

import (
	"os"
	"testing"

	"github.com/kwamina/walletbridge/internal/testutil/dblock"
)

// TestMain serializes packages that share the integration database.
func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}
