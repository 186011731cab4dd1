// Package atm models the card and keypad protocol of a simulated automated teller as a pure
// transition function over immutable snapshots.
package atm
