package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/sentinel"
)

func newSession(uuid string, at time.Time) *capture.Session {
	return &capture.Session{UUID: uuid, ApplicantID: "applicant-1", CreatedAt: at}
}

func TestMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory(30*time.Minute, WithClock(func() time.Time { return now }))

	require.NoError(t, m.Create(ctx, newSession("s1", now)))

	got, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.UUID)
	assert.Nil(t, got.Result)

	err = m.Create(ctx, newSession("s1", now))
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = m.Get(ctx, "unknown")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemory_WriteResultOnce_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(30 * time.Minute)
	require.NoError(t, m.Create(ctx, newSession("s1", time.Now())))

	first := &docauth.Response{Success: true, Extra: map[string]any{"writer": "first"}}
	second := &docauth.Response{Success: false, Errors: map[string]any{"network": true}}

	committed, err := m.WriteResultOnce(ctx, "s1", first)
	require.NoError(t, err)
	assert.True(t, committed)

	committed, err = m.WriteResultOnce(ctx, "s1", second)
	require.NoError(t, err)
	assert.False(t, committed)

	got, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)
	assert.Equal(t, "first", got.Result.Extra["writer"])
}

func TestMemory_WriteResultOnce_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(30 * time.Minute)
	require.NoError(t, m.Create(ctx, newSession("s1", time.Now())))

	const writers = 32
	var wg sync.WaitGroup
	commits := make(chan int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			result := &docauth.Response{Success: true, Extra: map[string]any{"writer": fmt.Sprint(id)}}
			committed, err := m.WriteResultOnce(ctx, "s1", result)
			assert.NoError(t, err)
			if committed {
				commits <- id
			}
		}(i)
	}
	wg.Wait()
	close(commits)

	var winners []int
	for id := range commits {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one write must commit")

	got, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(winners[0]), got.Result.Extra["writer"])
}

func TestMemory_TTLEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := &now
	m := NewMemory(30*time.Minute, WithClock(func() time.Time { return *clock }))

	require.NoError(t, m.Create(ctx, newSession("s1", now)))

	later := now.Add(31 * time.Minute)
	clock = &later

	_, err := m.Get(ctx, "s1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// A late result against the evicted session is dropped, not resurrected.
	committed, err := m.WriteResultOnce(ctx, "s1", &docauth.Response{Success: true})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.False(t, committed)
}

func TestMemory_MarkRequestedAndTimeoutState(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory(30*time.Minute, WithClock(func() time.Time { return now }))

	require.NoError(t, m.Create(ctx, newSession("s1", now)))
	require.NoError(t, m.MarkRequested(ctx, "s1", now))

	got, err := m.Get(ctx, "s1")
	require.NoError(t, err)

	timeout := 90 * time.Second
	assert.Equal(t, capture.StateInProgress, got.State(now, timeout))

	// Session created at T, queried at T+timeout+1s with no result.
	assert.Equal(t, capture.StateTimedOut, got.State(now.Add(timeout+time.Second), timeout))

	// A committed result is Done even after the window.
	_, err = m.WriteResultOnce(ctx, "s1", &docauth.Response{Success: true})
	require.NoError(t, err)
	got, err = m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, capture.StateDone, got.State(now.Add(timeout+time.Second), timeout))
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(30 * time.Minute)
	require.NoError(t, m.Create(ctx, newSession("s1", time.Now())))

	require.NoError(t, m.Delete(ctx, "s1"))

	_, err := m.Get(ctx, "s1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// Deleting an absent session is not an error.
	assert.NoError(t, m.Delete(ctx, "s1"))
}
