package engine

// Turn order is the roster order as a fixed cycle. Dead or conceded
// participants are skipped without renumbering the underlying slice, so log
// references stay valid for the whole session.

// FirstAlive returns the index of the first alive participant.
func FirstAlive(parts []Participant) (int, bool) {
	for i, p := range parts {
		if p.Alive() {
			return i, true
		}
	}
	return 0, false
}

// NextAlive returns the index of the next alive participant strictly after
// the given index, wrapping around. Reports false when nobody else is alive.
func NextAlive(parts []Participant, after int) (int, bool) {
	n := len(parts)
	if n == 0 {
		return 0, false
	}
	for step := 1; step <= n; step++ {
		i := (after + step) % n
		if parts[i].Alive() {
			return i, true
		}
	}
	return 0, false
}

// AliveSides returns the distinct sides that still have at least one alive
// participant, in roster order.
func AliveSides(parts []Participant) []Side {
	var sides []Side
	for _, p := range parts {
		if !p.Alive() {
			continue
		}
		found := false
		for _, s := range sides {
			if s == p.Side {
				found = true
				break
			}
		}
		if !found {
			sides = append(sides, p.Side)
		}
	}
	return sides
}

// battleOver reports whether at most one side remains alive.
func battleOver(parts []Participant) bool {
	return len(AliveSides(parts)) <= 1
}
