// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package reporter

import (
	"fmt"
	"net"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys
const (
	cborKeyIP     = 0
	cborKeyPPM    = 1
	cborKeyRating = 2
)

// CBORCodec encodes packets as an integer-keyed CBOR map:
// {0: ip bytes, 1: ppm, 2: rating}
type CBORCodec struct{}

// Name implements Codec
func (CBORCodec) Name() string { return "cbor" }

// Encode implements Codec
func (CBORCodec) Encode(p DataPacketOut) ([]byte, error) {
	ip := []byte{}
	if v4 := p.IPAddr.To4(); v4 != nil {
		ip = []byte(v4)
	} else if len(p.IPAddr) > 0 {
		ip = []byte(p.IPAddr)
	}
	msg := map[int]interface{}{
		cborKeyIP:     ip,
		cborKeyPPM:    uint64(p.CO2PPM),
		cborKeyRating: uint64(p.Rating),
	}
	return cbor.Marshal(msg)
}

// Decode implements Codec
func (CBORCodec) Decode(data []byte) (DataPacketOut, error) {
	var p DataPacketOut
	m, err := parseCBORMap(data)
	if err != nil {
		return p, err
	}

	ip, ok := getMapBytes(m, cborKeyIP)
	if !ok || (len(ip) != net.IPv4len && len(ip) != net.IPv6len && len(ip) != 0) {
		return p, fmt.Errorf("invalid ip field")
	}
	ppm, ok := getMapUint(m, cborKeyPPM)
	if !ok || ppm > 0xFFFF {
		return p, fmt.Errorf("invalid co2 field")
	}
	rating, ok := getMapUint(m, cborKeyRating)
	if !ok || rating > 0xFF {
		return p, fmt.Errorf("invalid rating field")
	}

	if len(ip) > 0 {
		p.IPAddr = net.IP(ip)
	}
	p.CO2PPM = uint16(ppm)
	p.Rating = uint8(rating)
	return p, nil
}

// parseCBORMap decodes an integer-keyed CBOR map
func parseCBORMap(data []byte) (map[int]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}

	var raw map[interface{}]interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	m := make(map[int]interface{}, len(raw))
	for key, val := range raw {
		switch k := key.(type) {
		case uint64:
			m[int(k)] = val
		case int64:
			m[int(k)] = val
		default:
			return nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return m, nil
}

// getMapUint extracts a uint64 from a CBOR map by key
func getMapUint(m map[int]interface{}, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// getMapBytes extracts a []byte from a CBOR map by key
func getMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	val, ok := v.([]byte)
	return val, ok
}
