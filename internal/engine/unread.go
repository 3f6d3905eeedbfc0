package engine

// unreadTracker is the derived per-room unread view. It counts only
// canonical arrivals (the reducer filters out temporaries, system messages
// and the user's own messages before recording) and resets a room's counter
// when that room gains focus. Callers hold the engine lock.
type unreadTracker struct {
	counts map[string]int
	total  int
}

func newUnreadTracker() unreadTracker {
	return unreadTracker{counts: make(map[string]int)}
}

func (t *unreadTracker) record(room string) {
	t.counts[room]++
	t.total++
}

// focus zeroes the room's counter and subtracts its prior value from the
// aggregate, clamped at zero.
func (t *unreadTracker) focus(room string) {
	n := t.counts[room]
	if n == 0 {
		return
	}
	delete(t.counts, room)
	t.total -= n
	if t.total < 0 {
		t.total = 0
	}
}

func (t *unreadTracker) snapshot() (map[string]int, int) {
	counts := make(map[string]int, len(t.counts))
	for room, n := range t.counts {
		counts[room] = n
	}
	return counts, t.total
}
