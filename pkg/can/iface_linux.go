//go:build linux

package can

import (
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Linux CAN interface helpers. Toggling IFF_UP or changing the bitrate
// needs CAP_NET_ADMIN; without it these return EPERM, wrapped with a hint.

func interfaceFlags(name string) (uint16, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, fmt.Errorf("can: interface %q: %w", name, err)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return 0, err
	}
	return ifr.Uint16(), nil
}

func setInterfaceFlags(name string, flags uint16) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return fmt.Errorf("can: interface %q: %w", name, err)
	}
	ifr.SetUint16(flags)
	return unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr)
}

// IsInterfaceUp reports whether the interface has IFF_UP set.
func IsInterfaceUp(name string) (bool, error) {
	flags, err := interfaceFlags(name)
	if err != nil {
		return false, err
	}
	return flags&unix.IFF_UP != 0, nil
}

// SetInterfaceUp sets IFF_UP on the interface. Requires CAP_NET_ADMIN.
func SetInterfaceUp(name string) error {
	flags, err := interfaceFlags(name)
	if err != nil {
		return err
	}
	if flags&unix.IFF_UP != 0 {
		return nil
	}
	return permHint(setInterfaceFlags(name, flags|unix.IFF_UP))
}

// ConfigureInterface brings a CAN interface up at the given bitrate by
// invoking iproute2, the same as
//
//	ip link set <name> up type can bitrate <bitrate>
//
// The interface is taken down first when it is already up, since the kernel
// rejects bitrate changes on a running interface. Requires CAP_NET_ADMIN.
func ConfigureInterface(name string, bitrate int) error {
	if bitrate <= 0 {
		return fmt.Errorf("can: invalid bitrate %d", bitrate)
	}
	if up, err := IsInterfaceUp(name); err == nil && up {
		out, err := exec.Command("ip", "link", "set", name, "down").CombinedOutput()
		if err != nil {
			return permHint(fmt.Errorf("can: ip link set down: %w (%s)", err, out))
		}
	}
	out, err := exec.Command("ip", "link", "set", name, "up",
		"type", "can", "bitrate", fmt.Sprintf("%d", bitrate)).CombinedOutput()
	if err != nil {
		return permHint(fmt.Errorf("can: ip link set up: %w (%s)", err, out))
	}
	return nil
}

func permHint(err error) error {
	if errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%w (needs CAP_NET_ADMIN, try sudo)", err)
	}
	return err
}
