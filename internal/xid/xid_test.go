package xid

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrefix(t *testing.T) {
	id := New("pay")
	assert.True(t, strings.HasPrefix(id, "pay-"))
	assert.Len(t, id, len("pay-")+36)
}

func TestNewIsMonotonic(t *testing.T) {
	ids := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		ids = append(ids, New("ent"))
	}
	require.True(t, sort.StringsAreSorted(ids), "ids should sort in creation order")
}
