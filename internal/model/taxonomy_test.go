package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyOrderAndUniqueness(t *testing.T) {
	tax := NewTaxonomy("Shoes", "Socks", "Shoes", "  ", "Hats")

	assert.Equal(t, []string{"Shoes", "Socks", "Hats"}, tax.Names())
	assert.Equal(t, 3, tax.Len())
	assert.True(t, tax.Contains("Socks"))
	assert.False(t, tax.Contains("Gloves"))

	assert.False(t, tax.Add("Shoes"))
	assert.True(t, tax.Add("Gloves"))
	assert.Equal(t, []string{"Shoes", "Socks", "Hats", "Gloves"}, tax.Names())
}

func TestSplitHierarchical(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantParent string
		wantSub    string
		wantOK     bool
	}{
		{"flat name", "Shoes", "", "", false},
		{"hierarchical", "Storage > Bike Storage", "Storage", "Bike Storage", true},
		{"only first separator splits", "A > B > C", "A", "B > C", true},
		{"empty parent", " > Sub", "", "", false},
		{"empty sub", "Parent > ", "", "", false},
		{"plain gt without spaces is flat", "A>B", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, sub, ok := SplitHierarchical(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantParent, parent)
			assert.Equal(t, tt.wantSub, sub)
		})
	}
}

func TestTaxonomyParentMap(t *testing.T) {
	tax := NewTaxonomy("Storage > Bike Storage", "Storage > Shelving", "Loose Ends")
	pm := tax.ParentMap()

	require.Len(t, pm, 2)
	assert.Equal(t, "Storage", pm["Storage > Bike Storage"])
	assert.Equal(t, "Storage", pm["Storage > Shelving"])
	_, hasFlat := pm["Loose Ends"]
	assert.False(t, hasFlat)
}
