package comap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Link_Empty_Home_Displaced_Roundtrip(t *testing.T) {
	t.Parallel()

	assert.True(t, linkInactive.isEmpty())

	home := encodeHome(7)
	assert.False(t, home.isEmpty())
	assert.True(t, home.isHome())
	assert.Equal(t, uint32(7), home.next())

	disp := encodeDisplaced(3)
	assert.False(t, disp.isEmpty())
	assert.False(t, disp.isHome())
	assert.Equal(t, uint32(3), disp.next())
}

func Test_Link_Terminal_Reports_SelfLoop(t *testing.T) {
	t.Parallel()

	self := encodeHome(5)
	assert.True(t, self.terminal(5))
	assert.False(t, self.terminal(4))
}

func Test_Link_WithTag_Preserves_HomeOrDisplaced(t *testing.T) {
	t.Parallel()

	h := encodeHome(1).withTag(9)
	assert.True(t, h.isHome())
	assert.Equal(t, uint32(9), h.next())

	d := encodeDisplaced(1).withTag(9)
	assert.False(t, d.isHome())
	assert.Equal(t, uint32(9), d.next())
}
