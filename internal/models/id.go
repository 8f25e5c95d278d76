package models

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/julianstephens/beaver/internal/constants"
)

// MintID derives a short identifier from name. When the candidate is
// already taken, the name is rehashed with an increasing counter suffix
// until a free identifier is found. The result only depends on name and
// the taken set.
func MintID(name string, taken func(string) bool) string {
	id := shortHash(name)
	for n := 1; taken(id); n++ {
		id = shortHash(name + "#" + strconv.Itoa(n))
	}
	return id
}

func shortHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:constants.HabitIDLength]
}
