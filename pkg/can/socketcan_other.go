//go:build !linux

package can

import "errors"

// DialSocketCAN requires Linux SocketCAN. On other systems use DialSLCAN
// with a serial CAN adapter.
func DialSocketCAN(iface string) (Bus, error) {
	return nil, errors.New("can: socketcan is only available on linux")
}
