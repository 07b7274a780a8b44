package models

import (
	"math/rand/v2"
	"slices"
)

// Categories is the fixed set a gift's category must come from.
var Categories = []string{
	"Tecnología",
	"Hogar",
	"Moda",
	"Viajes",
	"Ocio",
	"Deportes",
	"Otros",
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	return slices.Contains(Categories, name)
}

const (
	giftCodeLength   = 6
	giftCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewGiftCode returns a random short display code such as "K3Q9ZD".
// Codes are labels, not keys, so collisions are tolerated.
func NewGiftCode() string {
	b := make([]byte, giftCodeLength)
	for i := range b {
		b[i] = giftCodeAlphabet[rand.IntN(len(giftCodeAlphabet))]
	}
	return string(b)
}
