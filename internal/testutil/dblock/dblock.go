// Package dblock serializes DB-backed test suites. Every suite truncates the
// shared walletbridge tables on setup, so two packages running against the
// same DATABASE_URL would wipe each other's fixtures mid-test.
package dblock

import (
	"net"
	"time"
)

// A TCP listener doubles as a cross-process mutex: whichever `go test`
// process binds the port first proceeds, the rest spin until it exits.
const lockAddr = "127.0.0.1:45432"

func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
