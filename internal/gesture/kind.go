// Package gesture turns feature vectors into hand signs: it trains forests
// per sign family, classifies the control hand as open or closed, and gates
// smoothed predictions into written text.
package gesture

import (
	"errors"
	"slices"
)

// Sign families. Each family is trained into its own forest.
const (
	KindAlphabet = "alphabet"
	KindNumbers  = "numbers"
)

// ErrUnknownKind is returned for a sign family other than KindAlphabet or KindNumbers.
var ErrUnknownKind = errors.New("unknown gesture kind")

var labels = map[string][]string{
	KindAlphabet: {
		"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
		"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	},
	KindNumbers: {"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
}

// Kinds returns the known sign families in a stable order.
func Kinds() []string {
	return []string{KindAlphabet, KindNumbers}
}

// ValidKind reports whether kind is a known sign family.
func ValidKind(kind string) bool {
	_, ok := labels[kind]
	return ok
}

// Labels returns the labels of kind, or nil for an unknown kind.
func Labels(kind string) []string {
	return slices.Clone(labels[kind])
}

// ValidLabel reports whether label belongs to kind.
func ValidLabel(kind, label string) bool {
	return slices.Contains(labels[kind], label)
}

func kindIndex(kind string) int {
	return slices.Index(Kinds(), kind)
}
