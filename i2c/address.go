package i2c

import "fmt"

// Address is a target address, either 7 or 10 bits wide.
type Address struct {
	Value  uint16
	TenBit bool
}

// SevenBit returns a 7-bit address.
func SevenBit(addr uint16) Address {
	return Address{Value: addr}
}

// TenBit returns a 10-bit address. Controllers here cannot address 10-bit targets, so every
// operation given one fails as Unsupported.
func TenBit(addr uint16) Address {
	return Address{Value: addr, TenBit: true}
}

func (a Address) String() string {
	if a.TenBit {
		return fmt.Sprintf("0x%03x (10-bit)", a.Value)
	}
	return fmt.Sprintf("0x%02x", a.Value)
}
