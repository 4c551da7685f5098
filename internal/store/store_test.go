package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMemStore opens an in-memory SQLite database, runs migrations, and
// returns the store. The store is closed, and the database discarded, when
// the test finishes.
func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := newMemStore(t)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newMemStore(t)

	require.NoError(t, s.migrate())

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(migrations), count, "re-running migrate must not duplicate recorded versions")
}

func TestCreateUserUniqueness(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", "other@x.com", "salt", "hash")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.CreateUser(ctx, "other", "alice@x.com", "salt", "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	_, err := s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGroupTransactional(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "bob@x.com", "salt", "hash")
	require.NoError(t, err)

	g, err := s.CreateGroup(ctx, "friends", alice.ID, []int64{bob.ID})
	require.NoError(t, err)

	members, err := s.ListGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2, "expected creator + invitee")

	groups, err := s.ListGroupsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, g.ID, groups[0].ID)
}

func TestPrivateMessageDeliveryFlag(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "bob@x.com", "salt", "hash")
	require.NoError(t, err)

	msg, err := s.CreatePrivateMessage(ctx, alice.ID, bob.ID, "hi")
	require.NoError(t, err)
	assert.False(t, msg.IsDelivered, "expected is_delivered=false on creation")

	require.NoError(t, s.MarkDelivered(ctx, msg.ID, time.Now()))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDelivered)
	assert.True(t, got.DeliveredAt.Valid)
}

func TestListContactsJoinsUsername(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "bob@x.com", "salt", "hash")
	require.NoError(t, err)

	_, err = s.AddContact(ctx, alice.ID, bob.ID, "bobby")
	require.NoError(t, err)

	rows, err := s.ListContacts(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0].TargetUsername)
	assert.Equal(t, ContactPending, rows[0].Contact.Status)
}

func TestAddContactRejectsSelf(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)

	_, err = s.AddContact(ctx, alice.ID, alice.ID, "")
	assert.Error(t, err, "expected error when user_id == contact_id")
}

func TestCountStats(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "salt", "hash")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, "friends", alice.ID, nil)
	require.NoError(t, err)

	stats, err := s.CountStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Users)
	assert.EqualValues(t, 1, stats.Groups)
}
