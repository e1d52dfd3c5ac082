package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCluster(t *testing.T) {
	groups := Cluster([]string{"Customer ID", "customer_id", "Amount", "CustomerID", "amount"})

	require.Len(t, groups, 2)
	assert.Equal(t, Group{Key: "customer_id", Names: []string{"Customer ID", "customer_id", "CustomerID"}}, groups[0])
	assert.Equal(t, Group{Key: "amount", Names: []string{"Amount", "amount"}}, groups[1])
}

func TestCluster_FallbackKeysStaySeparate(t *testing.T) {
	groups := Cluster([]string{"???", "!!!", "???", "id"})

	require.Len(t, groups, 3)
	assert.Equal(t, Group{Key: "???", Names: []string{"???", "???"}}, groups[0])
	assert.Equal(t, Group{Key: "!!!", Names: []string{"!!!"}}, groups[1])
	assert.Equal(t, Group{Key: "id", Names: []string{"id"}}, groups[2])
}

func TestCluster_Empty(t *testing.T) {
	assert.Empty(t, Cluster(nil))
}

func TestCluster_EveryNameInExactlyOneGroup(t *testing.T) {
	names := []string{"a", "A", "b c", "B_C", "bC", "", "  ", "x-y"}
	total := 0
	for _, g := range Cluster(names) {
		for _, n := range g.Names {
			assert.Equal(t, g.Key, GroupKey(n))
		}
		total += len(g.Names)
	}
	assert.Equal(t, len(names), total)
}

func TestSampleValues(t *testing.T) {
	tbl := NewTable([]string{"a", "A", "b"},
		[]Cell{Text("1"), Null(), Text("x")},
		[]Cell{Text("1"), Text("2"), Text("y")},
		[]Cell{Text("3"), Text("4"), Text("z")},
	)

	assert.Equal(t, []string{"1", "2", "3"}, SampleValues(tbl, []string{"a", "A"}, 3))
	assert.Equal(t, []string{"x", "y"}, SampleValues(tbl, []string{"b"}, 2))
	assert.Empty(t, SampleValues(tbl, []string{"missing"}, 3))
	assert.Nil(t, SampleValues(nil, []string{"a"}, 3))
}

func TestSampleValues_SkipsNullsKeepsEmptyString(t *testing.T) {
	tbl := NewTable([]string{"a"},
		[]Cell{Null()},
		[]Cell{Text("")},
		[]Cell{Text("v")},
	)
	assert.Equal(t, []string{"", "v"}, SampleValues(tbl, []string{"a"}, 3))
}
