//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets the socket options a DHCP client needs before bind: address
// reuse so a stale socket on port 68 does not block us, broadcast sends, and
// optionally SO_BINDTODEVICE so broadcasts leave through the right link.
func control(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				opErr = fmt.Errorf("SO_REUSEADDR: %w", err)
				return
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
				opErr = fmt.Errorf("SO_BROADCAST: %w", err)
				return
			}
			if iface != "" {
				if err := unix.BindToDevice(int(fd), iface); err != nil {
					opErr = fmt.Errorf("SO_BINDTODEVICE %s: %w", iface, err)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
