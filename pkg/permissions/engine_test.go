package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/rejoin"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

const hostGuild = "host"

type fixture struct {
	dir       *guild.Memory
	bindings  *doccache.Cache[positions.Binding]
	transient *doccache.Cache[positions.TransientRole]
	snapColl  *store.MemoryCollection[rejoin.Snapshot]
	snapCache *doccache.Cache[rejoin.Snapshot]
	snapshots *rejoin.Store
	registry  *positions.Registry
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := guild.NewMemory("bot")
	dir.AddGuild(hostGuild, 100)
	dir.PutRole(&guild.Role{ID: "r1", GuildID: hostGuild, Name: "Staff", Rank: 10})
	dir.PutRole(&guild.Role{ID: "r2", GuildID: hostGuild, Name: "Event", Rank: 5})
	dir.PutRole(&guild.Role{ID: "r3", GuildID: hostGuild, Name: "Senior", Rank: 20})

	logger := observability.NewLogger(observability.ErrorLevel, nil)

	bindings := doccache.New[positions.Binding]("position_bindings")
	index := positions.NewIndex(dir)
	index.Attach(bindings)

	transientCache := doccache.New[positions.TransientRole]("transient_roles")
	transientSet := positions.NewTransientSet()
	transientSet.Attach(transientCache)

	snapColl := store.NewMemoryCollection[rejoin.Snapshot]("rejoin_roles",
		func(id string) *rejoin.Snapshot { return &rejoin.Snapshot{UserID: id} },
		func(s *rejoin.Snapshot, field string) *[]string { return &s.RoleIDs },
	)
	snapCache := doccache.New[rejoin.Snapshot]("rejoin_roles")
	snapshots := rejoin.NewStore(snapColl, snapCache, dir, logger, nil)

	registry := positions.NewRegistry()
	registry.DeclareAll("Staff", "Event")

	engine := NewEngine(dir, index, registry, transientSet, snapshots, hostGuild, logger, nil)

	return &fixture{
		dir:       dir,
		bindings:  bindings,
		transient: transientCache,
		snapColl:  snapColl,
		snapCache: snapCache,
		snapshots: snapshots,
		registry:  registry,
		engine:    engine,
	}
}

func (f *fixture) bind(position, guildID, roleID string) *positions.Binding {
	b := positions.NewBinding(position, guildID, roleID)
	f.bindings.Set(b.ID, b)
	return b
}

func (f *fixture) member(userID string, roleIDs ...string) *guild.Member {
	m := &guild.Member{UserID: userID, GuildID: hostGuild, RoleIDs: roleIDs}
	f.dir.PutMember(m)
	return m
}

func (f *fixture) snapshot(userID string, roleIDs ...string) {
	f.snapCache.Set(userID, &rejoin.Snapshot{UserID: userID, RoleIDs: roleIDs})
}

func TestHasPositionLiveMember(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.member("u1", "r1")
	f.member("u2", "r2")

	res := f.engine.HasPosition("u1", "Staff", hostGuild)
	assert.True(t, res.Granted())

	exp, err := res.Expiration(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exp, "engine grants never expire on their own")

	assert.True(t, f.engine.HasPosition("u2", "Staff", hostGuild).Denied())
}

func TestHasPositionNoBindingsIsIndeterminate(t *testing.T) {
	f := newFixture(t)
	f.member("u1", "r1")

	res := f.engine.HasPosition("u1", "Staff", hostGuild)
	assert.True(t, res.Indeterminate())
	assert.False(t, res.Denied(), "no binding configured is not a denial")
}

func TestHasPositionUncachedGuildIsIndeterminate(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", "ghost-guild", "r1")

	assert.True(t, f.engine.HasPosition("u1", "Staff", "ghost-guild").Indeterminate())
}

func TestHasPositionNonMemberWithoutSnapshotIsDenied(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")

	assert.True(t, f.engine.HasPosition("stranger", "Staff", hostGuild).Denied())
}

func TestBannedPosition(t *testing.T) {
	f := newFixture(t)
	f.dir.SetBanned(hostGuild, "outlaw", true)

	assert.True(t, f.engine.HasPosition("outlaw", positions.Banned, hostGuild).Granted())
	assert.True(t, f.engine.HasPosition("civilian", positions.Banned, hostGuild).Denied())
	assert.True(t, f.engine.HasPosition("anyone", positions.Banned, "ghost-guild").Indeterminate())
}

func TestBanDominatesEveryPosition(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.member("outlaw", "r1")
	f.dir.SetBanned(hostGuild, "outlaw", true)

	assert.True(t, f.engine.HasPosition("outlaw", "Staff", hostGuild).Denied(),
		"a ban revokes every other position unconditionally")
}

func TestBanDominatesStaleSnapshot(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.snapshot("outlaw", "r1")
	f.dir.SetBanned(hostGuild, "outlaw", true)

	assert.True(t, f.engine.HasPosition("outlaw", "Staff", hostGuild).Denied())
}

func TestOfflineFallbackThroughSnapshot(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.snapshot("departed", "r1", "r2")

	assert.True(t, f.engine.HasPosition("departed", "Staff", hostGuild).Granted())
	assert.True(t, f.engine.HasOnlinePosition("departed", "Staff", hostGuild).Denied(),
		"online semantics must ignore the snapshot")
}

func TestSnapshotExcludesTransientRoles(t *testing.T) {
	f := newFixture(t)
	f.bind("Event", hostGuild, "r2")
	f.transient.Set("r2", &positions.TransientRole{ID: "r2"})
	f.snapshot("departed", "r1", "r2")

	assert.True(t, f.engine.HasPosition("departed", "Event", hostGuild).Denied(),
		"transient roles are never honored from a stale snapshot")
}

func TestCascadedBindingDeletionMakesPositionIndeterminate(t *testing.T) {
	f := newFixture(t)
	b := f.bind("Staff", hostGuild, "r1")
	f.member("u1", "r1")
	require.True(t, f.engine.HasPosition("u1", "Staff", hostGuild).Granted())

	f.bindings.Delete(b.ID)

	assert.True(t, f.engine.HasPosition("u1", "Staff", hostGuild).Indeterminate())
}

func TestHasPositionLevel(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1") // pivot: rank 10
	f.member("explicit", "r1")
	f.member("senior", "r3") // rank 20, no Staff binding
	f.member("junior", "r2") // rank 5

	assert.True(t, f.engine.HasPositionLevel("explicit", "Staff", hostGuild).Granted())
	assert.True(t, f.engine.HasPositionLevel("senior", "Staff", hostGuild).Granted(),
		"any role ranked strictly above the pivot qualifies, bound or not")
	assert.True(t, f.engine.HasPositionLevel("junior", "Staff", hostGuild).Denied())
}

func TestHasPositionLevelPivotIsHighestBoundRole(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r2") // rank 5
	f.bind("Staff", hostGuild, "r1") // rank 10 -> pivot
	f.member("between", "between-role")
	f.dir.PutRole(&guild.Role{ID: "between-role", GuildID: hostGuild, Rank: 7})

	// rank 7 sits above the lower bound role but not above the pivot
	assert.True(t, f.engine.HasPositionLevel("between", "Staff", hostGuild).Denied())
}

func TestHasPositionLevelBannedUserIsDenied(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.member("outlaw", "r3")
	f.dir.SetBanned(hostGuild, "outlaw", true)

	assert.True(t, f.engine.HasPositionLevel("outlaw", "Staff", hostGuild).Denied())
}

func TestHasPermissionsEmptyDescriptorIsPermissive(t *testing.T) {
	f := newFixture(t)

	// fail open when unconfigured: callers must supply a constraint to restrict
	assert.True(t, f.engine.HasPermissions("anyone", hostGuild, Permissions{}))
}

func TestHasPermissions(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.member("staffer", "r1")
	f.member("nobody", "r2")
	admin := f.member("admin")
	admin.IsAdmin = true

	perms := Permissions{Positions: []string{"Staff"}}
	assert.True(t, f.engine.HasPermissions("staffer", hostGuild, perms))
	assert.True(t, f.engine.HasPermissions("admin", hostGuild, perms))
	assert.False(t, f.engine.HasPermissions("nobody", hostGuild, perms))

	// positions use online semantics: a snapshot-only holder fails
	f.snapshot("departed", "r1")
	assert.False(t, f.engine.HasPermissions("departed", hostGuild, perms))

	assert.True(t, f.engine.HasPermissions("staffer", hostGuild, Permissions{PositionLevel: "Staff"}))
}

func TestAddPositionLiveMember(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	m := f.member("u1")

	require.NoError(t, f.engine.AddPosition(context.Background(), "u1", "Staff", "promotion"))
	assert.True(t, m.HasRoleID("r1"))
}

func TestAddPositionOfflineMutatesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")

	ctx := context.Background()
	require.NoError(t, f.engine.AddPosition(ctx, "departed", "Staff", "promotion"))

	snap, err := f.snapColl.FindOne(ctx, "departed")
	require.NoError(t, err)
	assert.Contains(t, snap.RoleIDs, "r1")
}

func TestRemovePosition(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	m := f.member("u1", "r1", "r2")

	ctx := context.Background()
	require.NoError(t, f.engine.RemovePosition(ctx, "u1", "Staff", "demotion"))
	assert.False(t, m.HasRoleID("r1"))
	assert.True(t, m.HasRoleID("r2"))

	// offline revocation pulls from the snapshot
	require.NoError(t, f.snapColl.PushField(ctx, "departed", "roles", []string{"r1", "r2"}))
	require.NoError(t, f.engine.RemovePosition(ctx, "departed", "Staff", "demotion"))
	snap, err := f.snapColl.FindOne(ctx, "departed")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, snap.RoleIDs)
}

func TestAddPositionWithoutManageableRoles(t *testing.T) {
	f := newFixture(t)
	// bound role outranks the client
	f.dir.PutRole(&guild.Role{ID: "crown", GuildID: hostGuild, Rank: 500})
	f.bind("Staff", hostGuild, "crown")
	f.member("u1")

	assert.Error(t, f.engine.AddPosition(context.Background(), "u1", "Staff", "promotion"))
}

func TestUserPositions(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.bind("Event", hostGuild, "r2")
	f.member("u1", "r1")

	assert.Equal(t, []string{"Staff"}, f.engine.UserPositions("u1", hostGuild))
}

func TestRankExclusivity(t *testing.T) {
	f := newFixture(t)
	f.registry.SetRanks([]string{"Prime", "Private", "Premium"})
	f.dir.PutRole(&guild.Role{ID: "prime-role", GuildID: hostGuild, Rank: 1})
	f.dir.PutRole(&guild.Role{ID: "private-role", GuildID: hostGuild, Rank: 2})
	f.dir.PutRole(&guild.Role{ID: "premium-role", GuildID: hostGuild, Rank: 3})
	f.bind("Prime", hostGuild, "prime-role")
	f.bind("Private", hostGuild, "private-role")
	f.bind("Premium", hostGuild, "premium-role")

	// earned both Prime and Private; only Private counts
	f.member("climber", "prime-role", "private-role")

	highest, ok := f.engine.HighestRank("climber", hostGuild)
	require.True(t, ok)
	assert.Equal(t, "Private", highest)
	assert.Equal(t, []string{"Prime"}, f.engine.ForbiddenPositions("climber", hostGuild))

	_, ok = f.engine.HighestRank("nobody", hostGuild)
	assert.False(t, ok)
	assert.Empty(t, f.engine.ForbiddenPositions("nobody", hostGuild))
}

func TestMembersAndUsersWithPosition(t *testing.T) {
	f := newFixture(t)
	f.bind("Staff", hostGuild, "r1")
	f.member("live1", "r1")
	f.member("live2", "r2")
	f.snapshot("departed", "r1")

	members := f.engine.MembersWithPosition("Staff", hostGuild)
	require.Len(t, members, 1)
	assert.Equal(t, "live1", members[0].UserID)

	users := f.engine.UsersWithPosition("Staff", hostGuild)
	assert.ElementsMatch(t, []string{"live1", "departed"}, users)
}
