// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package reporter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnsupported is returned by links that cannot perform an operation
var ErrUnsupported = errors.New("reporter: not supported on this link")

// ErrNoLink is returned when no usable network interface is found
var ErrNoLink = errors.New("reporter: no network link")

// Link is the network association a reporter rides on
type Link interface {
	Join(ctx context.Context, ssid, password string) error
	JoinWPS(ctx context.Context) error
	IP() net.IP
	MAC() net.HardwareAddr
}

// HostLink uses a network interface already configured by the operating
// system. Joining checks the interface is up and has an IPv4 address; the
// credentials are only logged by the caller since association is handled
// outside this process.
type HostLink struct {
	// Interface names the interface to use. Empty picks the first interface
	// that is up, not a loopback, and has an IPv4 address.
	Interface string

	ip  net.IP
	mac net.HardwareAddr
}

// Join implements Link
func (h *HostLink) Join(ctx context.Context, ssid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoLink, err)
	}

	for _, iface := range ifaces {
		if h.Interface != "" && iface.Name != h.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if h.Interface == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ip := ipv4Of(iface)
		if ip == nil {
			continue
		}
		h.ip = ip
		h.mac = iface.HardwareAddr
		return nil
	}

	if h.Interface != "" {
		return fmt.Errorf("%w: interface %s is down or has no IPv4 address", ErrNoLink, h.Interface)
	}
	return ErrNoLink
}

// JoinWPS implements Link. Push-button setup is not available on hosts.
func (h *HostLink) JoinWPS(ctx context.Context) error {
	return ErrUnsupported
}

// IP implements Link. Nil until Join succeeds.
func (h *HostLink) IP() net.IP {
	return h.ip
}

// MAC implements Link
func (h *HostLink) MAC() net.HardwareAddr {
	return h.mac
}

func ipv4Of(iface net.Interface) net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			if v4 := ipnet.IP.To4(); v4 != nil {
				return v4
			}
		}
	}
	return nil
}
