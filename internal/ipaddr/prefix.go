package ipaddr

import "fmt"

// Prefix is a normalized (address, length) pair: address is always masked
// by length, so no host bits survive construction.
type Prefix struct {
	addr Address
	plen int
}

// NewPrefix constructs a Prefix, masking addr down to plen significant bits.
func NewPrefix(addr Address, plen int) (Prefix, error) {
	mask, err := ToMask(plen)
	if err != nil {
		return Prefix{}, err
	}
	return Prefix{addr: addr.And(mask), plen: plen}, nil
}

func (p Prefix) Address() Address { return p.addr }
func (p Prefix) Length() int      { return p.plen }

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.addr, p.plen)
}

// Less orders prefixes by address, then by length.
func (p Prefix) Less(o Prefix) bool {
	if p.addr != o.addr {
		return p.addr < o.addr
	}
	return p.plen < o.plen
}

// Contains reports whether p strictly contains o: p is a shorter prefix
// whose address range encloses o's.
func (p Prefix) Contains(o Prefix) bool {
	if p.plen >= o.plen {
		return false
	}
	mask, _ := ToMask(p.plen)
	return p.addr == o.addr.And(mask)
}
