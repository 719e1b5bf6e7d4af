// Package addr owns node addressing for the one-hop mesh.
//
// Ownership boundary:
// - node address type and broadcast constant
// - destination and origin checks used by the MAC
// - last-heard-from tracking
package addr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Addr is a node address. 0..254 are unicast, 255 is broadcast.
type Addr uint8

const (
	Broadcast  Addr = 255
	MaxUnicast Addr = 254
)

var ErrInvalidAddr = errors.New("addr: invalid node address")

func (a Addr) IsUnicast() bool { return a != Broadcast }

func (a Addr) String() string {
	if a == Broadcast {
		return "broadcast"
	}
	return strconv.Itoa(int(a))
}

// Parse accepts a decimal or 0x-prefixed unicast address.
func Parse(raw string) (Addr, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddr, raw)
	}
	a := Addr(v)
	if !a.IsUnicast() {
		return 0, fmt.Errorf("%w: %q is the broadcast address", ErrInvalidAddr, raw)
	}
	return a, nil
}

// IsAddressedToMe reports whether a frame sent to dest should be processed by self.
func IsAddressedToMe(dest, self Addr) bool {
	return dest == self || dest == Broadcast
}

// MatchesExpectedOrigin is strict equality of the claimed sender and the tracked one.
func MatchesExpectedOrigin(actual, expected Addr) bool {
	return actual == expected
}
