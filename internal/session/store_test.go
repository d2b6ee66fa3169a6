package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/set-night/sofia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	creates int
	updates int
	saved   []domain.Session
	delay   time.Duration
	err     error
	chats   []domain.Session
}

func (f *fakeRemote) SaveChat(ctx context.Context, s domain.Session) (domain.ChatSummary, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.ChatSummary{}, f.err
	}
	f.saved = append(f.saved, s)
	if s.ID == "" {
		f.creates++
		return domain.ChatSummary{ID: "chat-1", Title: s.Title}, nil
	}
	f.updates++
	return domain.ChatSummary{ID: s.ID, Title: s.Title}, nil
}

func (f *fakeRemote) ListChats(ctx context.Context) ([]domain.Session, error) {
	return f.chats, nil
}

type fakeFeedback struct {
	resets int
	loaded []string
}

func (f *fakeFeedback) Reset() { f.resets++ }

func (f *fakeFeedback) LoadForSession(ctx context.Context, id string) error {
	f.loaded = append(f.loaded, id)
	return nil
}

func userMsg(text string) domain.Message {
	return domain.Message{Text: text, Sender: domain.SenderUser}
}

func TestStore_AppendAssignsContiguousIndices(t *testing.T) {
	s := NewStore(&fakeRemote{}, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, s.Append(userMsg("m")))
	}

	snap := s.Snapshot()
	for i, m := range snap.Messages {
		assert.Equal(t, i, m.SequenceIndex)
	}
}

func TestStore_AppendConcurrentStaysGapless(t *testing.T) {
	s := NewStore(&fakeRemote{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(userMsg("x"))
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 50)
	for i, m := range snap.Messages {
		assert.Equal(t, i, m.SequenceIndex)
	}
}

func TestStore_PersistTwiceCreatesOnce(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, nil)
	s.Append(userMsg("hello"))

	require.NoError(t, s.Persist(context.Background()))
	require.NoError(t, s.Persist(context.Background()))

	assert.Equal(t, 1, remote.creates)
	assert.Equal(t, 1, remote.updates)
	assert.Equal(t, "chat-1", s.ID())
}

func TestStore_ConcurrentPersistCreatesOnce(t *testing.T) {
	remote := &fakeRemote{delay: 10 * time.Millisecond}
	s := NewStore(remote, nil)
	s.Append(userMsg("hello"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Persist(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, remote.creates)
	assert.Equal(t, 3, remote.updates)
}

func TestStore_PersistSkipsTemporaryAndEmpty(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, nil)

	require.NoError(t, s.Persist(context.Background()))

	s.SetTemporary(true)
	s.Append(userMsg("secret"))
	require.NoError(t, s.Persist(context.Background()))

	assert.Empty(t, remote.saved)
	assert.Empty(t, s.ID())
}

func TestStore_SaveTemporary(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, nil)

	assert.ErrorIs(t, s.SaveTemporary(context.Background()), domain.ErrNotTemporary)

	s.SetTemporary(true)
	s.Append(userMsg("keep me"))
	require.NoError(t, s.SaveTemporary(context.Background()))

	assert.False(t, s.IsTemporary())
	assert.Equal(t, 1, remote.creates)
	assert.Equal(t, "chat-1", s.ID())
}

func TestStore_PersistFailureKeepsTranscript(t *testing.T) {
	remote := &fakeRemote{err: errors.New("down")}
	s := NewStore(remote, nil)
	s.Append(userMsg("hello"))

	err := s.Persist(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.ID())
}

func TestStore_PersistTitle(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, nil)
	s.Append(userMsg(strings.Repeat("é", 40)))
	require.NoError(t, s.Persist(context.Background()))
	assert.Equal(t, strings.Repeat("é", 30), remote.saved[0].Title)

	s.SetTitle("Renamed")
	require.NoError(t, s.Persist(context.Background()))
	assert.Equal(t, "Renamed", remote.saved[1].Title)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Untitled", Title(nil))
	assert.Equal(t, "Untitled", Title([]domain.Message{{Text: ""}}))
	assert.Equal(t, "short", Title([]domain.Message{{Text: "short"}}))
}

func TestStore_LoadAssignsPositionsAndReloadsFeedback(t *testing.T) {
	remote := &fakeRemote{chats: []domain.Session{
		{ID: "other", Messages: []domain.Message{userMsg("x")}},
		{ID: "abc", Title: "Saved", Messages: []domain.Message{
			{Text: "q1", Sender: domain.SenderUser, SequenceIndex: 7},
			{Text: "a1", Sender: domain.SenderAssistant, SequenceIndex: 7},
			{Text: "q2", Sender: domain.SenderUser},
			{Text: "a2", Sender: domain.SenderAssistant},
		}},
	}}
	fb := &fakeFeedback{}
	s := NewStore(remote, remote)
	s.AttachFeedback(fb)
	s.SetTemporary(true)

	require.NoError(t, s.Load(context.Background(), "abc"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 4)
	for i, m := range snap.Messages {
		assert.Equal(t, i, m.SequenceIndex)
	}
	assert.Equal(t, "abc", snap.ID)
	assert.Equal(t, "Saved", snap.Title)
	assert.False(t, snap.IsTemporary)
	assert.Equal(t, 1, fb.resets)
	assert.Equal(t, []string{"abc"}, fb.loaded)
	assert.Equal(t, 4, s.Append(userMsg("next")))
}

func TestStore_LoadUnknownID(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, remote)
	s.Append(userMsg("keep"))

	assert.ErrorIs(t, s.Load(context.Background(), "nope"), domain.ErrSessionNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ResetClearsAndDropsLateReplies(t *testing.T) {
	fb := &fakeFeedback{}
	s := NewStore(&fakeRemote{}, nil)
	s.AttachFeedback(fb)
	s.Append(userMsg("old"))
	gen := s.Generation()

	s.Reset()

	_, ok := s.AppendIf(gen, domain.Message{Text: "late", Sender: domain.SenderAssistant})
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ID())
	assert.Equal(t, 1, fb.resets)
	assert.Empty(t, fb.loaded)
}

func TestStore_PersistObserver(t *testing.T) {
	s := NewStore(&fakeRemote{}, nil)
	var created []bool
	s.OnSaved(func(summary domain.ChatSummary, c bool) {
		created = append(created, c)
	})
	s.Append(userMsg("hi"))

	require.NoError(t, s.Persist(context.Background()))
	require.NoError(t, s.Persist(context.Background()))
	assert.Equal(t, []bool{true, false}, created)
}

func TestStore_SenderAt(t *testing.T) {
	s := NewStore(&fakeRemote{}, nil)
	s.Append(userMsg("q"))
	s.Append(domain.Message{Text: "a", Sender: domain.SenderAssistant})

	sender, ok := s.SenderAt(1)
	assert.True(t, ok)
	assert.Equal(t, domain.SenderAssistant, sender)

	_, ok = s.SenderAt(2)
	assert.False(t, ok)
}
