package device

import (
	"net"
	"strings"
)

// Address is a 48-bit BLE hardware address in canonical "AA:BB:CC:DD:EE:FF" form
type Address string

// ParseAddress validates s and returns it in canonical upper-case colon form.
// Dash and colon separated forms are accepted.
func ParseAddress(s string) (Address, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", &MalformedInputError{Input: s, Reason: "not a hardware address"}
	}
	if len(hw) != 6 {
		return "", &MalformedInputError{Input: s, Reason: "address must be 48 bits"}
	}
	return Address(strings.ToUpper(hw.String())), nil
}

// MustParseAddress is like ParseAddress but panics on error
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	return string(a)
}
