package atm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey indicates that a value does not name a keypad key.
var ErrInvalidKey = errors.New("invalid keypad key")

// Key is a symbol emitted by the teller keypad.
type Key uint8

const (
	// KeyOne is the digit 1.
	KeyOne Key = iota + 1
	// KeyTwo is the digit 2.
	KeyTwo
	// KeyThree is the digit 3.
	KeyThree
	// KeyFour is the digit 4.
	KeyFour
	// KeyEnter submits the buffered keys.
	KeyEnter
)

// String renders the key the way the keypad labels it.
func (k Key) String() string {
	switch k {
	case KeyOne:
		return "1"
	case KeyTwo:
		return "2"
	case KeyThree:
		return "3"
	case KeyFour:
		return "4"
	case KeyEnter:
		return "Enter"
	default:
		return fmt.Sprintf("Key(%d)", uint8(k))
	}
}

// IsDigit reports whether k is one of the numeric keys.
func (k Key) IsDigit() bool {
	return k >= KeyOne && k <= KeyFour
}

// Digit returns the numeric value of a digit key. It returns 0 for Enter and unknown keys.
func (k Key) Digit() uint64 {
	if !k.IsDigit() {
		return 0
	}
	return uint64(k)
}

// MarshalJSON encodes the key as its keypad label.
func (k Key) MarshalJSON() ([]byte, error) {
	if !k.IsDigit() && k != KeyEnter {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKey, uint8(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a keypad label.
func (k *Key) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	parsed, err := ParseKey(label)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// ParseKey converts a keypad label ("1".."4" or "enter") into a Key.
func ParseKey(label string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "1":
		return KeyOne, nil
	case "2":
		return KeyTwo, nil
	case "3":
		return KeyThree, nil
	case "4":
		return KeyFour, nil
	case "enter":
		return KeyEnter, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, label)
	}
}

// ParsePIN converts a string of digits into the key sequence typed to enter it.
func ParsePIN(pin string) ([]Key, error) {
	if pin == "" {
		return nil, fmt.Errorf("%w: empty pin", ErrInvalidKey)
	}

	keys := make([]Key, 0, len(pin))
	for _, r := range pin {
		key, err := ParseKey(string(r))
		if err != nil {
			return nil, err
		}
		if !key.IsDigit() {
			return nil, fmt.Errorf("%w: %q in pin", ErrInvalidKey, r)
		}
		keys = append(keys, key)
	}

	return keys, nil
}
