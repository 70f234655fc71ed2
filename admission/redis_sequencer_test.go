package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisSequencer(t *testing.T) (*RedisSequencer, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisSequencer(rdb)
	s.newToken = func() string { return "token-1" }
	return s, mock
}

func TestSequenceKey(t *testing.T) {
	p := Period{Year: 2024, Month: time.January}
	assert.Equal(t, "admission_seq:202401", SequenceKey(p))
	assert.Equal(t, "admission_lock:202401", LockKey(p))
}

func TestRedisSequencer_IncrementsExistingKey(t *testing.T) {
	db := setupTestDB(t)
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.January}
	key := SequenceKey(p)
	mock.ExpectIncr(key).SetVal(3)
	mock.ExpectIncr(key).SetVal(4)

	n, err := s.Next(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Next(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisSequencer_FirstOfMonthSetsTTL(t *testing.T) {
	db := setupTestDB(t)
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.May}
	key := SequenceKey(p)
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, sequenceTTL).SetVal(true)

	n, err := s.Next(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_ReseedsAfterKeyLoss(t *testing.T) {
	db := setupTestDB(t)
	seedPatients(t, db, "ADM2024060001", "ADM2024060002", "ADM2024060003")
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.June}
	key := SequenceKey(p)
	// key evicted or flushed: INCR recreates it at 1
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectSet(key, 4, sequenceTTL).SetVal("OK")
	mock.ExpectIncr(key).SetVal(5)

	n, err := s.Next(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "counter moves past codes already stored")

	n, err = s.Next(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_ReseedError(t *testing.T) {
	db := setupTestDB(t)
	seedPatients(t, db, "ADM2024060001")
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.June}
	key := SequenceKey(p)
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectSet(key, 2, sequenceTTL).SetErr(errors.New("redis connection error"))

	_, err := s.Next(context.Background(), db, p)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_IncrError(t *testing.T) {
	db := setupTestDB(t)
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.February}
	mock.ExpectIncr(SequenceKey(p)).SetErr(errors.New("redis connection error"))

	_, err := s.Next(context.Background(), db, p)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_Current(t *testing.T) {
	db := setupTestDB(t)
	seedPatients(t, db, "ADM2024030005")
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.March}
	key := SequenceKey(p)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).SetVal("7")

	n, err := s.Current(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "missing key falls back to the database")

	n, err = s.Current(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_LockPeriodWaitsForHolder(t *testing.T) {
	s, mock := newTestRedisSequencer(t)
	s.lockRetry = time.Millisecond

	p := Period{Year: 2024, Month: time.July}
	key := LockKey(p)
	mock.ExpectSetNX(key, "token-1", lockTTL).SetVal(false)
	mock.ExpectSetNX(key, "token-1", lockTTL).SetVal(true)
	mock.ExpectEvalSha(releaseLockScript.Hash(), []string{key}, "token-1").SetVal(int64(1))

	release, err := s.LockPeriod(context.Background(), p)
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_LockPeriodGivesUpOnContext(t *testing.T) {
	s, mock := newTestRedisSequencer(t)
	s.lockRetry = time.Hour

	p := Period{Year: 2024, Month: time.July}
	mock.ExpectSetNX(LockKey(p), "token-1", lockTTL).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release, err := s.LockPeriod(ctx, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, release)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_LockPeriodError(t *testing.T) {
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.July}
	mock.ExpectSetNX(LockKey(p), "token-1", lockTTL).SetErr(errors.New("redis connection error"))

	_, err := s.LockPeriod(context.Background(), p)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_WithGenerator(t *testing.T) {
	db := setupTestDB(t)
	s, mock := newTestRedisSequencer(t)

	p := Period{Year: 2024, Month: time.April}
	seqKey, lockKey := SequenceKey(p), LockKey(p)
	unlockSha := releaseLockScript.Hash()

	mock.ExpectSetNX(lockKey, "token-1", lockTTL).SetVal(true)
	mock.ExpectIncr(seqKey).SetVal(1)
	mock.ExpectExpire(seqKey, sequenceTTL).SetVal(true)
	mock.ExpectEvalSha(unlockSha, []string{lockKey}, "token-1").SetVal(int64(1))

	mock.ExpectSetNX(lockKey, "token-1", lockTTL).SetVal(true)
	mock.ExpectIncr(seqKey).SetVal(2)
	mock.ExpectEvalSha(unlockSha, []string{lockKey}, "token-1").SetVal(int64(1))

	// counter lost between admissions
	mock.ExpectSetNX(lockKey, "token-1", lockTTL).SetVal(true)
	mock.ExpectIncr(seqKey).SetVal(1)
	mock.ExpectSet(seqKey, 3, sequenceTTL).SetVal("OK")
	mock.ExpectEvalSha(unlockSha, []string{lockKey}, "token-1").SetVal(int64(1))

	g := NewGenerator(s, WithClock(fixedClock(2024, time.April, 2)))
	assert.Equal(t, KindRedis, g.SequencerName())

	var codes []string
	for i := 0; i < 3; i++ {
		code, err := g.Admit(context.Background(), db, persistPatient)
		require.NoError(t, err)
		codes = append(codes, code)
	}

	assert.Equal(t, []string{"ADM2024040001", "ADM2024040002", "ADM2024040003"}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
