package cache

import (
	"testing"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleConversation(id string) *history.Conversation {
	created := strfmt.DateTime(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return &history.Conversation{
		ID:        history.ID(id),
		Title:     "Conversation " + id,
		CreatedAt: created,
		UpdatedAt: created,
		Messages: []history.Message{
			{ID: "m1", Role: history.RoleUser, Content: "Hello", Timestamp: created},
			{ID: "m2", Role: history.RoleAssistant, Content: "Hi there", Timestamp: created, Model: "gpt-4o"},
		},
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Put("u1", sampleConversation("c1")))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	conv, err := reopened.Get("u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Conversation c1", conv.Title)
}

func TestStore_PutGet(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put("u1", sampleConversation("c1")))

	conv, err := store.Get("u1", "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
	assert.Equal(t, history.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, 2025, time.Time(conv.CreatedAt).Year())
}

func TestStore_Get_Miss(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("u1", "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStore_ScopedByUser(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put("u1", sampleConversation("c1")))
	_, err := store.Get("u2", "c1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.PutList("u1", []history.Conversation{*sampleConversation("c1")}))
	_, _, err = store.List("u2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStore_PutList_StripsMessages(t *testing.T) {
	store := openTestStore(t)

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.PutList("u1", []history.Conversation{
		*sampleConversation("c1"),
		*sampleConversation("c2"),
	}))

	convs, savedAt, err := store.List("u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Nil(t, convs[0].Messages)
	assert.Equal(t, 2, convs[0].MessageCount)
	assert.True(t, savedAt.After(before))
}

func TestStore_PutList_DoesNotMutateInput(t *testing.T) {
	store := openTestStore(t)
	in := []history.Conversation{*sampleConversation("c1")}

	require.NoError(t, store.PutList("u1", in))
	assert.Len(t, in[0].Messages, 2)
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put("u1", sampleConversation("c1")))
	require.NoError(t, store.PutList("u1", []history.Conversation{
		*sampleConversation("c1"),
		*sampleConversation("c2"),
	}))

	require.NoError(t, store.Delete("u1", "c1"))

	_, err := store.Get("u1", "c1")
	assert.ErrorIs(t, err, ErrMiss)

	convs, _, err := store.List("u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, history.ID("c2"), convs[0].ID)
}

func TestStore_Delete_NoList(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Delete("u1", "never-cached"))
}

func TestStore_Put_RequiresID(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.Put("u1", &history.Conversation{}))
	assert.Error(t, store.Put("u1", nil))
}

func TestStore_Close_NilSafe(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Close())
}
