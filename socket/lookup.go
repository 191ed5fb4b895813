package socket

// findSocket implements the lookup priority of section 4.4: an exact peer
// match short-circuits immediately; otherwise the first wildcard match
// wins. Must be called with t.mu held.
func (t *Table) findSocket(localPort, remoteNode, remotePort uint8) *Socket {
	var wildcard *Socket

	for _, s := range t.active {
		if s.localPort != localPort {
			continue
		}

		switch {
		case s.remoteNode == remoteNode && s.remotePort == remotePort &&
			(s.state == Established || s.state == SynSent || s.state == SynReceived):
			return s

		case wildcard == nil && s.state == Listening:
			wildcard = s

		case wildcard == nil && s.Type == Dgram && s.state == Open:
			wildcard = s
		}
	}

	return wildcard
}

// FindSocket is the exported, locked form of findSocket, for callers
// outside the package (tests, diagnostics).
func (t *Table) FindSocket(localPort, remoteNode, remotePort uint8) *Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findSocket(localPort, remoteNode, remotePort)
}
