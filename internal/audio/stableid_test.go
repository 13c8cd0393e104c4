package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableID(t *testing.T) {
	id := StableID("Monitor of Speakers", 2, 48000)
	assert.Len(t, id, 16)
	assert.Equal(t, id, StableID("Monitor of Speakers", 2, 48000))
	assert.NotEqual(t, id, StableID("Monitor of Speakers", 1, 48000))
	assert.NotEqual(t, id, StableID("Monitor of Headphones", 2, 48000))
}
