package table

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRecordAddsColumnsInFirstSeenOrder(t *testing.T) {
	tbl := New("GameID")
	tbl.AppendRecord(nil, Record{"GameID": Int(1)})
	tbl.AppendRecord([]string{"Runs", "Hits"}, Record{"GameID": Int(2), "Runs": Int(4), "Hits": Int(9)})

	assert.Equal(t, []string{"GameID", "Runs", "Hits"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.Get(0, "Runs").IsNull())
	assert.True(t, tbl.Get(1, "Runs").Equal(Int(4)))
}

func TestAppendRejectsWrongWidth(t *testing.T) {
	tbl := New("a", "b")
	require.Error(t, tbl.Append(Int(1)))
	require.NoError(t, tbl.Append(Int(1), String("x")))
}

func TestRenameAndDropColumn(t *testing.T) {
	tbl := New("Batting", "AB", "H")
	require.NoError(t, tbl.Append(String("Smith"), Int(4), Int(2)))

	require.NoError(t, tbl.RenameColumn("Batting", "Player"))
	require.Error(t, tbl.RenameColumn("AB", "H"))
	require.Error(t, tbl.RenameColumn("missing", "x"))

	tbl.DropColumn("AB")
	assert.Equal(t, []string{"Player", "H"}, tbl.Columns())
	assert.True(t, tbl.Get(0, "H").Equal(Int(2)))
}

func TestInsertColumnAfter(t *testing.T) {
	tbl := New("Player", "AB")
	require.NoError(t, tbl.Append(String("Smith"), Int(4)))
	require.NoError(t, tbl.InsertColumnAfter("Player", "Position"))

	assert.Equal(t, []string{"Player", "Position", "AB"}, tbl.Columns())
	assert.True(t, tbl.Get(0, "Position").IsNull())
	assert.True(t, tbl.Get(0, "AB").Equal(Int(4)))
}

func TestSortStableKeepsTies(t *testing.T) {
	tbl := New("GameNum", "Tag")
	for _, r := range []struct {
		n   int64
		tag string
	}{{2, "a"}, {1, "b"}, {2, "c"}, {1, "d"}} {
		require.NoError(t, tbl.Append(Int(r.n), String(r.tag)))
	}
	tbl.SortStable(func(a, b Record) bool {
		x, _ := a["GameNum"].AsInt()
		y, _ := b["GameNum"].AsInt()
		return x < y
	})

	var tags []string
	for _, v := range tbl.Column("Tag") {
		s, _ := v.AsString()
		tags = append(tags, s)
	}
	if diff := cmp.Diff([]string{"b", "d", "a", "c"}, tags); diff != "" {
		t.Fatalf("sorted order mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := New("R")
	require.NoError(t, tbl.Append(Int(8)))
	c := tbl.Clone()
	c.Set(0, "R", Int(0))

	assert.True(t, tbl.Get(0, "R").Equal(Int(8)))
	assert.False(t, tbl.Equal(c))
}

func TestSelect(t *testing.T) {
	tbl := New("a", "b", "c")
	require.NoError(t, tbl.Append(Int(1), Int(2), Int(3)))
	out, err := tbl.Select("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, out.Columns())
	assert.Equal(t, []Value{Int(3), Int(1)}, out.Values(0))

	_, err = tbl.Select("z")
	require.Error(t, err)
}

func TestValueJSONKeepsKind(t *testing.T) {
	in := []Value{Null(), Int(41), Float(3), Float(0.381), String("Team Totals")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[null,41,3.0,0.381,"Team Totals"]`, string(data))

	var out []Value
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, len(in))
	for i := range in {
		assert.Truef(t, in[i].Equal(out[i]), "index %d: %v != %v", i, in[i], out[i])
	}
	assert.Equal(t, KindFloat, out[2].Kind())
}

func TestFloatNaNIsNull(t *testing.T) {
	var zero float64
	assert.True(t, Float(zero/zero).IsNull())
}

func TestAsFloatWidensInt(t *testing.T) {
	f, ok := Int(7).AsFloat()
	require.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = Null().AsFloat()
	assert.False(t, ok)
}

func TestParseText(t *testing.T) {
	assert.True(t, ParseText("").IsNull())
	assert.True(t, ParseText("42").Equal(Int(42)))
	assert.True(t, ParseText("-0.25").Equal(Float(-0.25)))
	assert.True(t, ParseText("3").Equal(Int(3)), "whole numbers read back as ints")
	assert.True(t, ParseText("Ivan Nova").Equal(String("Ivan Nova")))
}
