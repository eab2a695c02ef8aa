package radoneye

import "strings"

// Identity selects one RD200. It is fixed for the lifetime of a session.
type Identity struct {
	Address string
	Name    string
	Adapter string
}

// Matches reports whether addr is the identity's address, ignoring case.
func (id Identity) Matches(addr string) bool {
	return strings.EqualFold(id.Address, addr)
}

func (id Identity) String() string {
	if id.Name == "" {
		return id.Address
	}
	return id.Name + " (" + id.Address + ")"
}
