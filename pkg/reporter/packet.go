// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package reporter

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

// DataPacketOut is one report: who measured, what, and how it was rated
type DataPacketOut struct {
	IPAddr net.IP `json:"ipaddr"`
	CO2PPM uint16 `json:"co2_ppm"`
	Rating uint8  `json:"rating"`
}

// Codec serializes packets for the wire
type Codec interface {
	Name() string
	Encode(p DataPacketOut) ([]byte, error)
	Decode(data []byte) (DataPacketOut, error)
}

// JSONCodec encodes packets as a flat JSON object
type JSONCodec struct{}

// Name implements Codec
func (JSONCodec) Name() string { return "json" }

// Encode implements Codec
func (JSONCodec) Encode(p DataPacketOut) ([]byte, error) {
	return json.Marshal(p)
}

// Decode implements Codec
func (JSONCodec) Decode(data []byte) (DataPacketOut, error) {
	var p DataPacketOut
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return p, nil
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (use json or cbor)", name)
	}
}

// IsBinary reports whether a codec's output may contain arbitrary bytes,
// including newlines.
func IsBinary(c Codec) bool {
	switch c.(type) {
	case JSONCodec, *JSONCodec:
		return false
	}
	return true
}
