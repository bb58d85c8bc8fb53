package guild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectoryBasics(t *testing.T) {
	d := NewMemory("bot")
	d.AddGuild("g1", 50)

	assert.True(t, d.GuildCached("g1"))
	assert.False(t, d.GuildCached("g2"))
	assert.Equal(t, "bot", d.ClientUserID())

	d.PutMember(&Member{UserID: "u1", GuildID: "g1", RoleIDs: []string{"r1"}})
	require.NotNil(t, d.Member("g1", "u1"))
	assert.Nil(t, d.Member("g1", "ghost"))
	assert.Len(t, d.Members("g1"), 1)

	d.RemoveMember("g1", "u1")
	assert.Nil(t, d.Member("g1", "u1"))
}

func TestMemoryCanManage(t *testing.T) {
	d := NewMemory("bot")
	d.AddGuild("g1", 50)
	d.PutRole(&Role{ID: "below", GuildID: "g1", Rank: 10})
	d.PutRole(&Role{ID: "equal", GuildID: "g1", Rank: 50})
	d.PutRole(&Role{ID: "above", GuildID: "g1", Rank: 90})
	d.PutRole(&Role{ID: "integration", GuildID: "g1", Rank: 10, Managed: true})

	assert.True(t, d.CanManage("g1", "below"))
	assert.False(t, d.CanManage("g1", "equal"), "equal rank is not manageable")
	assert.False(t, d.CanManage("g1", "above"))
	assert.False(t, d.CanManage("g1", "integration"))
	assert.False(t, d.CanManage("g1", "missing"))
}

func TestMemoryRoleMutation(t *testing.T) {
	d := NewMemory("bot")
	d.AddGuild("g1", 50)
	d.PutMember(&Member{UserID: "u1", GuildID: "g1"})

	ctx := context.Background()
	require.NoError(t, d.AddRole(ctx, "g1", "u1", "r1", "test"))
	require.NoError(t, d.AddRole(ctx, "g1", "u1", "r1", "test"), "double add is idempotent")
	assert.Equal(t, []string{"r1"}, d.Member("g1", "u1").RoleIDs)

	require.NoError(t, d.RemoveRole(ctx, "g1", "u1", "r1", "test"))
	assert.Empty(t, d.Member("g1", "u1").RoleIDs)

	assert.Error(t, d.AddRole(ctx, "g1", "ghost", "r1", "test"))
}

func TestMemoryDeleteRoleStripsMembers(t *testing.T) {
	d := NewMemory("bot")
	d.AddGuild("g1", 50)
	d.PutRole(&Role{ID: "r1", GuildID: "g1", Rank: 10})
	d.PutMember(&Member{UserID: "u1", GuildID: "g1", RoleIDs: []string{"r1", "r2"}})

	d.DeleteRole("g1", "r1")

	assert.Nil(t, d.Role("g1", "r1"))
	assert.Equal(t, []string{"r2"}, d.Member("g1", "u1").RoleIDs)
}

func TestMemberHasRoleID(t *testing.T) {
	m := &Member{RoleIDs: []string{"a", "b"}}
	assert.True(t, m.HasRoleID("a"))
	assert.False(t, m.HasRoleID("c"))
}

func TestMemoryBans(t *testing.T) {
	d := NewMemory("bot")
	d.AddGuild("g1", 50)

	d.SetBanned("g1", "u1", true)
	assert.True(t, d.IsBanned("g1", "u1"))

	d.SetBanned("g1", "u1", false)
	assert.False(t, d.IsBanned("g1", "u1"))
}
