package relay

// Conversation is the per-session mutable store: an append-only sequence of
// turns plus the identifier of the last completed remote exchange. It is
// owned by a single session; callers serialize access.
type Conversation struct {
	Turns          []Turn
	LastResponseID string
}

// Append adds a turn. Insertion order is chronological order.
func (c *Conversation) Append(role Role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content})
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.Turns)
}

// Reset clears the turn sequence and the last response identifier. This is
// the only way LastResponseID becomes empty again.
func (c *Conversation) Reset() {
	c.Turns = nil
	c.LastResponseID = ""
}

// Snapshot returns a copy of the turn sequence.
func (c *Conversation) Snapshot() []Turn {
	turns := make([]Turn, len(c.Turns))
	copy(turns, c.Turns)
	return turns
}

// truncate restores the turn sequence to a prior length. Used to roll back
// turns appended optimistically before a call that then failed.
func (c *Conversation) truncate(n int) {
	if n < 0 || n > len(c.Turns) {
		return
	}
	c.Turns = c.Turns[:n]
}
