package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory(t *testing.T) {
	var m Memory
	assert.Equal(t, "", m.ReadAll())

	assert.NoError(t, m.WriteAll("first"))
	assert.NoError(t, m.WriteAll("second"))
	assert.Equal(t, "second", m.ReadAll())
}
