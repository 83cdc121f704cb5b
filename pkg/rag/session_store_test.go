package rag

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreLifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := &ProcessingSession{
		SessionID: "s1",
		Filename:  "apple_10k.pdf",
		Stage:     StageValidation,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.Put(ctx, session))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "apple_10k.pdf", got.Filename)
	assert.Equal(t, StageValidation, got.Stage)

	require.NoError(t, store.Update(ctx, "s1", func(s *ProcessingSession) {
		s.Stage = StageChunking
		s.Progress = 55
		s.Messages = append(s.Messages, SessionMessage{Timestamp: time.Now(), Text: "chunking"})
	}))

	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StageChunking, got.Stage)
	assert.Equal(t, 55, got.Progress)
	assert.Len(t, got.Messages, 1)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStoreGetUnknown(t *testing.T) {
	store := NewMemorySessionStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = store.Update(context.Background(), "missing", func(*ProcessingSession) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStoreGetReturnsCopy(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &ProcessingSession{SessionID: "s1", Stage: StageValidation}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.Stage = StageError

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StageValidation, again.Stage, "mutating a returned session must not affect the store")
}

func TestDeleteAfterRemovesSession(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &ProcessingSession{SessionID: "s1"}))
	store.DeleteAfter("s1", 20*time.Millisecond)

	_, err := store.Get(ctx, "s1")
	require.NoError(t, err, "session should still exist before the delay")

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, "s1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestAppendMessageKeepsRecentLines(t *testing.T) {
	session := &ProcessingSession{}
	for i := 1; i <= 30; i++ {
		session.AppendMessage(fmt.Sprintf("line %d", i))
	}

	assert.Len(t, session.Messages, maxSessionMessages)
	assert.Equal(t, 30, session.MessageSeq)
	assert.Equal(t, "line 11", session.Messages[0].Text)
	assert.Equal(t, "line 30", session.Messages[len(session.Messages)-1].Text)
}

func TestSessionTerminal(t *testing.T) {
	assert.True(t, (&ProcessingSession{Stage: StageCompleted}).Terminal())
	assert.True(t, (&ProcessingSession{Stage: StageError}).Terminal())
	assert.False(t, (&ProcessingSession{Stage: StageChunking}).Terminal())
}

func TestProgressForStage(t *testing.T) {
	assert.Equal(t, 0, ProgressForStage(StageValidation))
	assert.Equal(t, 15, ProgressForStage(StageExtraction))
	assert.Equal(t, 50, ProgressForStage(StageChunking))
	assert.Equal(t, 100, ProgressForStage(StageCompleted))
	assert.Equal(t, 0, ProgressForStage(StageError))
	assert.Equal(t, 0, ProgressForStage(ProcessingStage("BOGUS")))
}
