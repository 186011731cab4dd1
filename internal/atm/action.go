package atm

import "fmt"

// ActionKind enumerates the stimuli a teller reacts to.
type ActionKind uint8

const (
	// ActionSwipeCard presents a card carrying the digest of its PIN.
	ActionSwipeCard ActionKind = iota + 1
	// ActionPressKey presses one keypad key.
	ActionPressKey
)

func (k ActionKind) String() string {
	switch k {
	case ActionSwipeCard:
		return "swipe_card"
	case ActionPressKey:
		return "press_key"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// Action is one external stimulus. Digest is set for card swipes, Key for key presses.
type Action struct {
	Kind   ActionKind
	Digest Digest
	Key    Key
}

// SwipeCard builds the action of swiping a card whose PIN hashes to digest.
func SwipeCard(digest Digest) Action {
	return Action{Kind: ActionSwipeCard, Digest: digest}
}

// PressKey builds the action of pressing key.
func PressKey(key Key) Action {
	return Action{Kind: ActionPressKey, Key: key}
}

func (a Action) String() string {
	if a.Kind == ActionPressKey {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Key)
	}
	return a.Kind.String()
}
