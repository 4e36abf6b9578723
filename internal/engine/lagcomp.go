package engine

import "time"

// maxSpliceDepth bounds how many recent log entries a compensated resolve
// will ever rewind past, independent of the time window.
const maxSpliceDepth = 64

// Offset clamps the client-reported lag into [0, window]. Client clocks
// ahead of the server, or reports older than the window, compensate nothing.
func Offset(clientTimestamp, receipt time.Time, window time.Duration) time.Duration {
	if clientTimestamp.IsZero() {
		return 0
	}
	off := receipt.Sub(clientTimestamp)
	if off <= 0 {
		return 0
	}
	if off > window {
		return 0
	}
	return off
}

// ApplyCompensated resolves an action, rewinding eligible reactive kinds to
// the point in the log where the client says the action happened. The
// intervening entries are replayed over the initial snapshot to rebuild the
// past state; if the action resolves there, its effects are spliced onto the
// head snapshot and the entry is tagged with the applied offset for audit.
// Everything else resolves at receipt time with no compensation.
func ApplyCompensated(base, head Snapshot, log []Entry, act Action, receipt time.Time) ([]Entry, Snapshot, error) {
	offset := Offset(act.ClientTimestamp, receipt, head.Rules.MaxCompensationWindow)
	// Turn-consuming kinds resolve at receipt even when configured
	// compensable: their advance and completion entries cannot be spliced.
	if offset == 0 || !head.Rules.Compensable(act.Kind) || act.Kind.ConsumesTurn() {
		return Apply(head, act, receipt)
	}

	idx := spliceIndex(log, receipt.Add(-offset))
	if idx >= len(log) {
		// nothing happened since the client acted
		return Apply(head, act, receipt)
	}

	past := Reduce(base, log[:idx])
	pastEntries, _, err := Apply(past, act, receipt.Add(-offset))
	if err != nil {
		// invalid back then too, resolve at receipt like any other action
		return Apply(head, act, receipt)
	}

	// Re-sequence the past resolution onto the head of the log.
	e := pastEntries[0]
	e.Seq = head.NextSeq
	e.Tick = head.Tick + 1
	e.Timestamp = receipt
	e.Compensated = true
	e.CompensationOffset = offset

	next := head.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

// spliceIndex finds the position in the log where an event at the effective
// time would have landed, scanning back at most maxSpliceDepth entries.
func spliceIndex(log []Entry, effective time.Time) int {
	idx := len(log)
	for i := len(log) - 1; i >= 0 && len(log)-i <= maxSpliceDepth; i-- {
		if log[i].Timestamp.After(effective) {
			idx = i
			continue
		}
		break
	}
	return idx
}
