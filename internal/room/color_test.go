package room

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColorForDeterministic(t *testing.T) {
	require.Equal(t, ColorFor("alice"), ColorFor("alice"))
	require.Contains(t, colorPalette[:], ColorFor("alice"))
	require.Contains(t, colorPalette[:], ColorFor(""))
	require.Contains(t, colorPalette[:], ColorFor("юзер"))
}
