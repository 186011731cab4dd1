package atm

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Snapshot is one immutable value of the teller state: cash on hand, the authentication phase,
// and the keys pressed since the last Enter.
type Snapshot struct {
	Cash       uint64 `json:"cash"`
	Phase      Phase  `json:"phase"`
	Keystrokes []Key  `json:"keystrokes,omitempty"`
}

// NewSnapshot returns an idle teller holding cash.
func NewSnapshot(cash uint64) Snapshot {
	return Snapshot{Cash: cash, Phase: Waiting()}
}

// Equal reports whether two snapshots hold the same values. Nil and empty buffers are equal.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Cash == other.Cash &&
		s.Phase == other.Phase &&
		slices.Equal(s.Keystrokes, other.Keystrokes)
}

// UnmarshalJSON decodes a snapshot. The keystroke buffer only ever holds digits.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	for i, k := range decoded.Keystrokes {
		if !k.IsDigit() {
			return fmt.Errorf("%w: keystroke %d is %s", ErrInvalidKey, i, k)
		}
	}
	*s = Snapshot(decoded)
	return nil
}

func (s Snapshot) withKey(k Key) Snapshot {
	keys := make([]Key, len(s.Keystrokes), len(s.Keystrokes)+1)
	copy(keys, s.Keystrokes)
	s.Keystrokes = append(keys, k)
	return s
}

func (s Snapshot) endSession(next Phase) Snapshot {
	s.Phase = next
	s.Keystrokes = nil
	return s
}
