package store

import (
	ai "github.com/spetersoncode/tandem"
)

// Append returns msgs extended with add. Messages without an ID get one;
// messages whose ID is already present in msgs (or earlier in add) are
// skipped. The input slice is never modified in place.
func Append(msgs []ai.Message, add ...ai.Message) []ai.Message {
	if len(add) == 0 {
		return msgs
	}
	seen := make(map[string]struct{}, len(msgs)+len(add))
	for _, m := range msgs {
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
	}

	out := make([]ai.Message, len(msgs), len(msgs)+len(add))
	copy(out, msgs)
	for _, m := range add {
		if m.ID == "" {
			m.ID = ai.GenerateMessageID()
		} else if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m.Clone())
	}
	return out
}

// TruncateFromRole removes the last message with the given role and
// everything after it. It returns msgs unchanged and false when no message
// has that role.
func TruncateFromRole(msgs []ai.Message, role ai.Role) ([]ai.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			out := make([]ai.Message, i)
			copy(out, msgs[:i])
			return out, true
		}
	}
	return msgs, false
}

// LastOfRole returns the last message with the given role.
func LastOfRole(msgs []ai.Message, role ai.Role) (ai.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return ai.Message{}, false
}

// Copy returns a deep copy of msgs.
func Copy(msgs []ai.Message) []ai.Message {
	if msgs == nil {
		return nil
	}
	out := make([]ai.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the last n messages. If n exceeds len(msgs), all are returned.
func Last(msgs []ai.Message, n int) []ai.Message {
	if n <= 0 {
		return nil
	}
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	return Copy(msgs[start:])
}
