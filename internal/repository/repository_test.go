package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/sofia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *int32:
			*p = r.values[i].(int32)
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *pgtype.Timestamptz:
			*p = r.values[i].(pgtype.Timestamptz)
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	tag      string
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag(f.tag), f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/sofia", PoolOptions{MaxConns: 4, MinConns: 1, HealthCheckPeriod: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.HealthCheckPeriod)

	cfg, err = poolConfig("postgres://localhost/sofia", PoolOptions{MaxConns: 2, MinConns: 9})
	require.NoError(t, err)
	assert.Equal(t, int32(2), cfg.MinConns)

	cfg, err = poolConfig("postgres://localhost/sofia?pool_max_conns=7", PoolOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(7), cfg.MaxConns)
	assert.Equal(t, int32(0), cfg.MinConns)

	_, err = poolConfig("postgres://localhost:notaport/x", PoolOptions{})
	assert.Error(t, err)
}

func TestBindingRepo_Get(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(7), "c1", true, "web_search"}}}
	repo := NewBindingRepo(db)

	b, found, err := repo.GetBinding(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.ChatBinding{ChatID: 7, SessionID: "c1", Temporary: true, Mode: domain.ModeWebSearch}, b)
	assert.Equal(t, []any{int64(7)}, db.lastArgs)
}

func TestBindingRepo_GetMissing(t *testing.T) {
	repo := NewBindingRepo(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, found, err := repo.GetBinding(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBindingRepo_GetError(t *testing.T) {
	repo := NewBindingRepo(&fakeDB{row: fakeRow{err: errors.New("conn reset")}})

	_, _, err := repo.GetBinding(context.Background(), 7)
	assert.ErrorContains(t, err, "get binding")
}

func TestBindingRepo_Save(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := NewBindingRepo(db)

	err := repo.SaveBinding(context.Background(), domain.ChatBinding{ChatID: 7, SessionID: "c1", Mode: domain.ModeVoice})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), "c1", false, "voice_mode"}, db.lastArgs)
}

func TestRateLimiter_Hit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	window := pgtype.Timestamptz{Time: now.Truncate(time.Minute), Valid: true}
	db := &fakeDB{row: fakeRow{values: []any{int32(3), window}}}
	rl := NewRateLimiter(db)
	rl.now = func() time.Time { return now }

	count, started, err := rl.Hit(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, now.Truncate(time.Minute), started)
	assert.Equal(t, window, db.lastArgs[1])
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	db := &fakeDB{tag: "DELETE 4"}
	rl := NewRateLimiter(db)
	rl.now = func() time.Time { return now }

	n, err := rl.Cleanup(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, timeToPgTimestamptz(now.Add(-10*time.Minute)), db.lastArgs[0])
}

func TestConvert(t *testing.T) {
	assert.True(t, pgTimestamptzToTime(pgtype.Timestamptz{}).IsZero())
	assert.False(t, timeToPgTimestamptz(time.Time{}).Valid)
}
