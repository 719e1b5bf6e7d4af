package addr

// LastHeard records the origin of the most recent validly addressed frame.
// The zero value holds no address.
type LastHeard struct {
	addr Addr
	ok   bool
}

func (h *LastHeard) Set(a Addr) {
	h.addr = a
	h.ok = true
}

// Clear is called when a receive attempt timed out or was misaddressed.
func (h *LastHeard) Clear() {
	h.addr = 0
	h.ok = false
}

func (h *LastHeard) Get() (Addr, bool) {
	return h.addr, h.ok
}

func (h LastHeard) String() string {
	if !h.ok {
		return "none"
	}
	return h.addr.String()
}
