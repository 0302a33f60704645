//go:build !linux

package transport

import "syscall"

// control is a no-op off Linux. The net package already enables SO_BROADCAST
// on UDP sockets; interface filtering relies on control messages alone.
func control(string) func(network, address string, c syscall.RawConn) error {
	return nil
}
