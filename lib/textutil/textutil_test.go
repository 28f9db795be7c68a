package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "vacina gripe", NormalizeName("  Vacina   GRIPE \n"))
	require.Equal(t, "", NormalizeName("   "))
}

func TestEqualNames(t *testing.T) {
	require.True(t, EqualNames("Maria  Silva", " MARIA SILVA "))
	require.False(t, EqualNames("Maria Silva", "Maria da Silva"))
}

func TestCollapseSpaces(t *testing.T) {
	require.Equal(t, "Hexavalente GSK 10", CollapseSpaces(" Hexavalente \n\t GSK   10 "))
}
