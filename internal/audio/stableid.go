package audio

import (
	"fmt"
	"hash/fnv"
)

// StableID derives a device id from properties that survive re-enumeration,
// for backends whose native ids are indexes or opaque pointers.
func StableID(name string, channels, sampleRate int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s-%d_%d", name, channels, sampleRate)
	return fmt.Sprintf("%016x", h.Sum64())
}
