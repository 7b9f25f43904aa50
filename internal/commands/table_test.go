package commands

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

func newTestTable() *Table {
	return NewTable(func(name string) bool { return name == "raffle" }, zerolog.Nop())
}

func TestTable_CRUD(t *testing.T) {
	tbl := newTestTable()

	require.NoError(t, tbl.Add(Definition{Name: "!Hug", Content: "hi", UseCount: 9}))
	def, ok := tbl.Get("hug")
	require.True(t, ok)
	assert.Equal(t, "hug", def.Name)
	assert.Zero(t, def.UseCount)

	content := "hello"
	require.NoError(t, tbl.Edit("HUG", Patch{Content: &content}))
	def, _ = tbl.Get("hug")
	assert.Equal(t, "hello", def.Content)

	require.NoError(t, tbl.Delete("hug"))
	_, ok = tbl.Get("hug")
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_Validation(t *testing.T) {
	tbl := newTestTable()

	assert.ErrorIs(t, tbl.Add(Definition{Name: ""}), cerrors.ErrInvalidConfiguration)
	assert.ErrorIs(t, tbl.Add(Definition{Name: "x", CooldownSeconds: -1}), cerrors.ErrInvalidConfiguration)
	assert.ErrorIs(t, tbl.Add(Definition{Name: "x", PointCost: -1}), cerrors.ErrInvalidConfiguration)
	assert.ErrorIs(t, tbl.Add(Definition{Name: "raffle"}), cerrors.ErrReservedName)
	assert.ErrorIs(t, tbl.Edit("nope", Patch{}), cerrors.ErrNoSuchCommand)
}

func TestTable_InvalidEditKeepsPrevious(t *testing.T) {
	tbl := newTestTable()
	require.NoError(t, tbl.Add(Definition{Name: "hug", Content: "hi", CooldownSeconds: 5}))

	bad := -3
	content := "changed"
	err := tbl.Edit("hug", Patch{CooldownSeconds: &bad, Content: &content})
	assert.ErrorIs(t, err, cerrors.ErrInvalidConfiguration)

	def, _ := tbl.Get("hug")
	assert.Equal(t, 5, def.CooldownSeconds)
	assert.Equal(t, "hi", def.Content)
}

func TestTable_ListSortedAndRestore(t *testing.T) {
	tbl := newTestTable()
	require.NoError(t, tbl.Add(Definition{Name: "zeta", Content: "z"}))
	require.NoError(t, tbl.Add(Definition{Name: "alpha", Content: "a"}))

	list := tbl.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)

	n := tbl.Restore([]Definition{
		{Name: "kept", Content: "k", UseCount: 4},
		{Name: "raffle", Content: "shadow"},
		{Name: "bad", CooldownSeconds: -1},
	})
	assert.Equal(t, 1, n)
	def, ok := tbl.Get("kept")
	require.True(t, ok)
	assert.Equal(t, 4, def.UseCount)
	_, ok = tbl.Get("alpha")
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"":            LevelNone,
		"sub":         LevelSubscriber,
		"Moderator":   LevelMod,
		"broadcaster": LevelBroadcaster,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("admin")
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.True(t, LevelMod > LevelSubscriber)
	assert.Equal(t, "mod", LevelMod.String())
}
