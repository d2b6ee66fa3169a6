package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/set-night/sofia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id        string
	temporary bool
	senders   []domain.Sender
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) IsTemporary() bool { return f.temporary }

func (f *fakeSession) SenderAt(idx int) (domain.Sender, bool) {
	if idx < 0 || idx >= len(f.senders) {
		return "", false
	}
	return f.senders[idx], true
}

type post struct {
	chatID string
	index  int
	j      domain.Judgment
}

type fakeRemote struct {
	mu      sync.Mutex
	posts   []post
	postErr error
	stored  []domain.FeedbackEntry
}

func (f *fakeRemote) PostFeedback(ctx context.Context, chatID string, index int, j domain.Judgment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{chatID, index, j})
	return f.postErr
}

func (f *fakeRemote) FetchFeedback(ctx context.Context, chatID string) ([]domain.FeedbackEntry, error) {
	return f.stored, nil
}

type syncSpawner struct{}

func (syncSpawner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	_ = fn(ctx)
}

func conversation() *fakeSession {
	return &fakeSession{id: "abc", senders: []domain.Sender{
		domain.SenderUser, domain.SenderAssistant, domain.SenderUser, domain.SenderAssistant,
	}}
}

func TestLedger_NeutralIsDistinctFromNeverSet(t *testing.T) {
	l := NewLedger(conversation(), &fakeRemote{}, syncSpawner{})

	require.NoError(t, l.Set(context.Background(), 1, domain.JudgmentLike))
	require.NoError(t, l.Set(context.Background(), 1, domain.JudgmentNeutral))

	j, ok := l.Get(1)
	assert.True(t, ok)
	assert.Equal(t, domain.JudgmentNeutral, j)

	_, ok = l.Get(3)
	assert.False(t, ok)
}

func TestLedger_SetPostsToBackend(t *testing.T) {
	remote := &fakeRemote{}
	l := NewLedger(conversation(), remote, syncSpawner{})

	require.NoError(t, l.Set(context.Background(), 3, domain.JudgmentDislike))
	assert.Equal(t, []post{{"abc", 3, domain.JudgmentDislike}}, remote.posts)
}

func TestLedger_FailedPostKeepsLocalJudgment(t *testing.T) {
	remote := &fakeRemote{postErr: errors.New("offline")}
	l := NewLedger(conversation(), remote, syncSpawner{})

	require.NoError(t, l.Set(context.Background(), 1, domain.JudgmentLike))
	j, ok := l.Get(1)
	assert.True(t, ok)
	assert.Equal(t, domain.JudgmentLike, j)
}

func TestLedger_RejectsNonAssistantIndex(t *testing.T) {
	l := NewLedger(conversation(), &fakeRemote{}, syncSpawner{})

	assert.ErrorIs(t, l.Set(context.Background(), 0, domain.JudgmentLike), domain.ErrNotAssistant)
	assert.ErrorIs(t, l.Set(context.Background(), 9, domain.JudgmentLike), domain.ErrNotAssistant)
	assert.Empty(t, l.Entries())
}

func TestLedger_TemporaryAndUnsavedStayLocal(t *testing.T) {
	for _, sess := range []*fakeSession{
		{id: "", senders: []domain.Sender{domain.SenderUser, domain.SenderAssistant}},
		{id: "abc", temporary: true, senders: []domain.Sender{domain.SenderUser, domain.SenderAssistant}},
	} {
		remote := &fakeRemote{}
		l := NewLedger(sess, remote, syncSpawner{})

		require.NoError(t, l.Set(context.Background(), 1, domain.JudgmentLike))
		assert.Empty(t, remote.posts)
		_, ok := l.Get(1)
		assert.True(t, ok)
	}
}

func TestLedger_LoadForSessionOnlyRemoteIndices(t *testing.T) {
	remote := &fakeRemote{stored: []domain.FeedbackEntry{
		{SequenceIndex: 1, Judgment: domain.JudgmentLike},
		{SequenceIndex: 3, Judgment: domain.JudgmentNeutral},
	}}
	l := NewLedger(conversation(), remote, syncSpawner{})

	require.NoError(t, l.LoadForSession(context.Background(), "abc"))

	entries := l.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, domain.JudgmentLike, entries[1].Judgment)
	assert.Equal(t, domain.JudgmentNeutral, entries[3].Judgment)
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger(conversation(), &fakeRemote{}, syncSpawner{})
	require.NoError(t, l.Set(context.Background(), 1, domain.JudgmentLike))

	l.Reset()
	assert.Empty(t, l.Entries())
}
