// Package repository tests run against a real PostgreSQL instance
// started with testcontainers-go. They are skipped when Docker is not
// available.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"room-score-server/internal/model"
	"room-score-server/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = db.Migrate(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func seedPlayer(t *testing.T, pool *pgxpool.Pool, playerID, username string) {
	t.Helper()
	repo := NewPlayerRepository(pool)
	_, err := repo.Upsert(context.Background(), playerID, username, "")
	require.NoError(t, err)
}

// ============================================================================
// PlayerRepository Tests
// ============================================================================

func TestPlayerRepository_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerRepository(pool)
	ctx := context.Background()

	player, err := repo.Upsert(ctx, "p1", "alice", "http://a.example/pic")
	require.NoError(t, err)
	assert.Equal(t, "p1", player.PlayerID)
	assert.Equal(t, "alice", player.Username)
	assert.False(t, player.CreatedAt.IsZero())

	// Upsert again with new display data refreshes, does not duplicate
	player, err = repo.Upsert(ctx, "p1", "alice2", "")
	require.NoError(t, err)
	assert.Equal(t, "alice2", player.Username)

	// A score row exists from the first upsert
	score, err := repo.GetScore(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), score.CurrentTotal)
	assert.Equal(t, 0, score.GamesPlayed)
}

func TestPlayerRepository_GetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "p1", "alice")

	player, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", player.Username)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPlayerRepository_GetLeaderboard(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "p1", "alice")
	seedPlayer(t, pool, "p2", "bob")
	seedPlayer(t, pool, "p3", "carol")

	require.NoError(t, ledger.SetTotal(ctx, pool, "p2", 300))
	require.NoError(t, ledger.SetTotal(ctx, pool, "p3", 100))

	entries, err := repo.GetLeaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p2", entries[0].PlayerID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "p3", entries[1].PlayerID)
	assert.Equal(t, 2, entries[1].Rank)
}

// ============================================================================
// RoomRepository Tests
// ============================================================================

func TestRoomRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRoomRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")

	room, err := repo.Create(ctx, pool, "A123", "host", 30, 2)
	require.NoError(t, err)
	assert.Equal(t, "A123", room.RoomCode)
	assert.Equal(t, model.RoomWaiting, room.Status)
	assert.Equal(t, 30, room.MaxPlayers)

	got, err := repo.Get(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, got.RoomID)

	_, err = repo.Get(ctx, pool, 99999)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomRepository_LiveCodeUniqueness(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRoomRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")

	room, err := repo.Create(ctx, pool, "7Q42", "host", 30, 2)
	require.NoError(t, err)

	// Same code collides while the first room is live
	_, err = repo.Create(ctx, pool, "7Q42", "host", 30, 2)
	assert.ErrorIs(t, err, ErrCodeTaken)

	inUse, err := repo.CodeInUse(ctx, pool, "7Q42")
	require.NoError(t, err)
	assert.True(t, inUse)

	// Once the room is terminal the code is free again
	require.NoError(t, repo.Finish(ctx, pool, room.RoomID))

	inUse, err = repo.CodeInUse(ctx, pool, "7Q42")
	require.NoError(t, err)
	assert.False(t, inUse)

	_, err = repo.Create(ctx, pool, "7Q42", "host", 30, 2)
	assert.NoError(t, err)
}

func TestRoomRepository_GetLiveByCode(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRoomRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")

	room, err := repo.Create(ctx, pool, "55X1", "host", 30, 2)
	require.NoError(t, err)

	got, err := repo.GetLiveByCode(ctx, pool, "55X1")
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, got.RoomID)

	require.NoError(t, repo.Finish(ctx, pool, room.RoomID))

	// Finished rooms are not addressable by code
	_, err = repo.GetLiveByCode(ctx, pool, "55X1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomRepository_FindIdle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRoomRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")

	room, err := repo.Create(ctx, pool, "11A1", "host", 30, 2)
	require.NoError(t, err)

	// Fresh room, zero idle window: immediately idle
	ids, err := repo.FindIdle(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, ids, room.RoomID)

	// Long idle window: nothing to reap
	ids, err = repo.FindIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, ids, room.RoomID)

	// Terminal rooms are never reaped
	require.NoError(t, repo.Finish(ctx, pool, room.RoomID))
	ids, err = repo.FindIdle(ctx, 0)
	require.NoError(t, err)
	assert.NotContains(t, ids, room.RoomID)
}

// ============================================================================
// ParticipantRepository Tests
// ============================================================================

func TestParticipantRepository_InsertAndReactivate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	rooms := NewRoomRepository(pool)
	parts := NewParticipantRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")
	seedPlayer(t, pool, "p2", "bob")

	room, err := rooms.Create(ctx, pool, "2B22", "host", 30, 2)
	require.NoError(t, err)

	p, err := parts.Insert(ctx, pool, room.RoomID, "p2", 1)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantActive, p.Status)
	assert.Equal(t, int64(0), p.FinalScore)
	assert.Equal(t, 1, p.Position)

	changed, err := parts.SetStatus(ctx, pool, room.RoomID, "p2", model.ParticipantLeft)
	require.NoError(t, err)
	assert.True(t, changed)

	// Leaving twice is a no-op
	changed, err = parts.SetStatus(ctx, pool, room.RoomID, "p2", model.ParticipantLeft)
	require.NoError(t, err)
	assert.False(t, changed)

	// Reactivation restores the same row: seat and balance survive
	require.NoError(t, parts.AddToFinalScore(ctx, pool, room.RoomID, "p2", 70))
	back, err := parts.Reactivate(ctx, pool, p.ParticipationID)
	require.NoError(t, err)
	assert.Equal(t, p.ParticipationID, back.ParticipationID)
	assert.Equal(t, model.ParticipantActive, back.Status)
	assert.Equal(t, 1, back.Position)
	assert.Equal(t, int64(70), back.FinalScore)
	assert.Nil(t, back.LeftAt)
}

func TestParticipantRepository_ActiveCountAndPositions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	rooms := NewRoomRepository(pool)
	parts := NewParticipantRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")
	seedPlayer(t, pool, "p2", "bob")
	seedPlayer(t, pool, "p3", "carol")

	room, err := rooms.Create(ctx, pool, "3C33", "host", 30, 2)
	require.NoError(t, err)

	pos, err := parts.NextPosition(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = parts.Insert(ctx, pool, room.RoomID, "host", 1)
	require.NoError(t, err)
	_, err = parts.Insert(ctx, pool, room.RoomID, "p2", 2)
	require.NoError(t, err)

	pos, err = parts.NextPosition(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	count, err := parts.ActiveCount(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Departed participants no longer count toward capacity
	_, err = parts.SetStatus(ctx, pool, room.RoomID, "p2", model.ParticipantLeft)
	require.NoError(t, err)
	count, err = parts.ActiveCount(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// But their seat is not reused
	pos, err = parts.NextPosition(ctx, pool, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	has, err := parts.HasActiveElsewhere(ctx, pool, "host", 0)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = parts.HasActiveElsewhere(ctx, pool, "host", room.RoomID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestParticipantRepository_MarkAllLeft(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	rooms := NewRoomRepository(pool)
	parts := NewParticipantRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "host", "host")
	seedPlayer(t, pool, "p2", "bob")

	room, err := rooms.Create(ctx, pool, "4D44", "host", 30, 2)
	require.NoError(t, err)
	_, err = parts.Insert(ctx, pool, room.RoomID, "host", 1)
	require.NoError(t, err)
	_, err = parts.Insert(ctx, pool, room.RoomID, "p2", 2)
	require.NoError(t, err)
	_, err = parts.SetStatus(ctx, pool, room.RoomID, "p2", model.ParticipantKicked)
	require.NoError(t, err)

	require.NoError(t, parts.MarkAllLeft(ctx, pool, room.RoomID))

	host, err := parts.Get(ctx, pool, room.RoomID, "host")
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantLeft, host.Status)
	assert.NotNil(t, host.LeftAt)

	// Kicked stays kicked
	p2, err := parts.Get(ctx, pool, room.RoomID, "p2")
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantKicked, p2.Status)
}

// ============================================================================
// LedgerRepository Tests
// ============================================================================

func TestLedgerRepository_TransferAudit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	rooms := NewRoomRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "p1", "alice")
	seedPlayer(t, pool, "p2", "bob")

	room, err := rooms.Create(ctx, pool, "5E55", "p1", 30, 2)
	require.NoError(t, err)

	desc := "round 1"
	rec, err := ledger.InsertTransfer(ctx, pool, "p1", "p2", 40, room.RoomID, &desc)
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.Points)
	assert.Equal(t, "p1", rec.FromPlayerID)

	txn, err := ledger.InsertScoreTransaction(ctx, pool, "p1", &room.RoomID, -40, -40, &desc)
	require.NoError(t, err)
	assert.Equal(t, int64(-40), txn.PointsChange)
	assert.Equal(t, int64(-40), txn.CurrentTotal)

	views, err := ledger.RecentByRoom(ctx, pool, room.RoomID, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "p1", views[0].From)
	assert.Equal(t, "p2", views[0].To)
	assert.Equal(t, "round 1", views[0].Description)

	history, err := ledger.HistoryByPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(-40), history[0].PointsChange)
}

func TestLedgerRepository_LockTotals(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "p1", "alice")
	seedPlayer(t, pool, "p2", "bob")

	require.NoError(t, ledger.SetTotal(ctx, pool, "p1", 120))

	totals, err := ledger.LockTotals(ctx, pool, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, int64(120), totals["p1"])
	assert.Equal(t, int64(0), totals["p2"])
}

func TestLedgerRepository_ApplySettlement(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	rooms := NewRoomRepository(pool)
	parts := NewParticipantRepository(pool)
	players := NewPlayerRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	seedPlayer(t, pool, "p1", "alice")
	seedPlayer(t, pool, "p2", "bob")
	seedPlayer(t, pool, "p3", "carol")

	room, err := rooms.Create(ctx, pool, "6F66", "p1", 30, 2)
	require.NoError(t, err)
	for i, id := range []string{"p1", "p2", "p3"} {
		_, err = parts.Insert(ctx, pool, room.RoomID, id, i+1)
		require.NoError(t, err)
	}
	require.NoError(t, parts.AddToFinalScore(ctx, pool, room.RoomID, "p1", 50))
	require.NoError(t, parts.AddToFinalScore(ctx, pool, room.RoomID, "p2", -50))

	require.NoError(t, ledger.ApplySettlement(ctx, pool, room.RoomID))

	s1, err := players.GetScore(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, s1.GamesPlayed)
	assert.Equal(t, 1, s1.GamesWon)
	assert.Equal(t, 0, s1.GamesLost)

	s2, err := players.GetScore(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, s2.GamesPlayed)
	assert.Equal(t, 0, s2.GamesWon)
	assert.Equal(t, 1, s2.GamesLost)

	// Zero balance: played but neither won nor lost
	s3, err := players.GetScore(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, 1, s3.GamesPlayed)
	assert.Equal(t, 0, s3.GamesWon)
	assert.Equal(t, 0, s3.GamesLost)
}
