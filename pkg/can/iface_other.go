//go:build !linux

package can

import "errors"

var errLinuxOnly = errors.New("can: interface management is only available on linux")

// IsInterfaceUp is only implemented on Linux.
func IsInterfaceUp(name string) (bool, error) { return false, errLinuxOnly }

// SetInterfaceUp is only implemented on Linux.
func SetInterfaceUp(name string) error { return errLinuxOnly }

// ConfigureInterface is only implemented on Linux.
func ConfigureInterface(name string, bitrate int) error { return errLinuxOnly }
