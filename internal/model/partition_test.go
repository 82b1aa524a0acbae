package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionAssignAndOrder(t *testing.T) {
	p := NewPartition("Shoes", "Socks")
	p.Assign("Socks", 2)
	p.Assign("Shoes", 1)
	p.Assign("Hats", 3)

	// Pre-registered buckets keep taxonomy order, late buckets append.
	assert.Equal(t, []string{"Shoes", "Socks", "Hats"}, p.Names())
	assert.Equal(t, []int{1}, p.Indices("Shoes"))
	assert.Equal(t, 3, p.Total())
}

func TestPartitionDedupeKeepsFirstBucket(t *testing.T) {
	p := NewPartition("Shoes", "Socks")
	p.Assign("Shoes", 1)
	p.Assign("Shoes", 2)
	p.Assign("Socks", 2)
	p.Assign("Socks", 3)
	p.Assign("Socks", 3)

	removed := p.Dedupe()
	assert.Equal(t, 2, removed)
	assert.Equal(t, []int{1, 2}, p.Indices("Shoes"))
	assert.Equal(t, []int{3}, p.Indices("Socks"))
	require.NoError(t, p.Verify(3))
}

func TestPartitionVerify(t *testing.T) {
	t.Run("complete partition passes", func(t *testing.T) {
		p := NewPartition("A", "B")
		p.Assign("A", 1)
		p.Assign("B", 2)
		p.Assign("A", 3)
		require.NoError(t, p.Verify(3))
	})

	t.Run("missing index fails", func(t *testing.T) {
		p := NewPartition("A")
		p.Assign("A", 1)
		err := p.Verify(2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "covers 1 of 2")
	})

	t.Run("duplicate fails", func(t *testing.T) {
		p := NewPartition("A", "B")
		p.Assign("A", 1)
		p.Assign("B", 1)
		require.Error(t, p.Verify(1))
	})

	t.Run("out of range fails", func(t *testing.T) {
		p := NewPartition("A")
		p.Assign("A", 5)
		require.Error(t, p.Verify(1))
	})
}

func TestPartitionLargest(t *testing.T) {
	p := NewPartition("A", "B", "C")

	// All empty: ties break by iteration order.
	name, ok := p.Largest()
	require.True(t, ok)
	assert.Equal(t, "A", name)

	p.Assign("B", 1)
	p.Assign("B", 2)
	p.Assign("C", 3)
	name, _ = p.Largest()
	assert.Equal(t, "B", name)

	// Equal counts: earlier bucket wins.
	p.Assign("C", 4)
	name, _ = p.Largest()
	assert.Equal(t, "B", name)

	_, ok = (&Partition{}).Largest()
	assert.False(t, ok)
}

func TestPartitionDropEmpty(t *testing.T) {
	p := NewPartition("A", "B", "C")
	p.Assign("B", 1)
	p.DropEmpty()

	assert.Equal(t, []string{"B"}, p.Names())
}

func TestPartitionJSONRoundTrip(t *testing.T) {
	p := NewPartition("Shoes", "Socks")
	p.Assign("Shoes", 1)
	p.Assign("Socks", 2)
	p.Assign("Shoes", 3)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Partition
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, []string{"Shoes", "Socks"}, got.Names())
	assert.Equal(t, []int{1, 3}, got.Indices("Shoes"))
	assert.Equal(t, []int{2}, got.Indices("Socks"))
}
