package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NexiraAI/nexira/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "session.yaml"))
	require.NoError(t, err)
	return store
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session change")
		return Change{}
	}
}

func TestOpen_EmptySession(t *testing.T) {
	store := openTestStore(t)
	assert.Empty(t, store.Snapshot())
	assert.False(t, store.Identity().LoggedIn())
}

func TestOpen_IgnoresUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nexira_language: vi\nlegacy_key: x\n"), 0600))

	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "vi", store.Get(KeyLanguage))
	assert.NotContains(t, store.Snapshot(), "legacy_key")
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml [\n"), 0600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestStore_SetPersists(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(KeyTheme, "dark"))

	reopened, err := Open(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "dark", reopened.Get(KeyTheme))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStore_SetMany_Validation(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]string
		unknown bool
	}{
		{"unknown key", map[string]string{"nexira_favourite_colour": "blue"}, true},
		{"bad language", map[string]string{KeyLanguage: "de"}, false},
		{"bad theme", map[string]string{KeyTheme: "sepia"}, false},
		{"bad email", map[string]string{KeyUserEmail: "not-an-email"}, false},
		{"bad provider", map[string]string{KeyLoginProvider: "github"}, false},
		{"bad onboarding", map[string]string{KeyOnboardingComplete: "maybe"}, false},
		{"bad conversation", map[string]string{KeyCurrentConversation: "../x"}, false},
		{"one bad among good", map[string]string{KeyTheme: "dark", KeyLanguage: "fr"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t)
			err := store.SetMany(tt.updates)
			require.Error(t, err)
			if tt.unknown {
				assert.ErrorIs(t, err, ErrUnknownKey)
			} else {
				assert.ErrorIs(t, err, validation.ErrInvalid)
			}
			assert.Empty(t, store.Snapshot(), "nothing should be written")
			_, statErr := os.Stat(store.Path())
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestStore_SetMany_Atomic(t *testing.T) {
	store := openTestStore(t)
	ch, cancel := store.Subscribe()
	defer cancel()

	require.NoError(t, store.SetMany(map[string]string{
		KeySelectedProvider: "openai",
		KeySelectedModel:    "gpt-4o",
	}))

	change := waitChange(t, ch)
	assert.Equal(t, []string{KeySelectedModel, KeySelectedProvider}, change.Keys)
	assert.Equal(t, SourceLocal, change.Source)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestStore_SetMany_NoopDoesNotNotify(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(KeyTheme, "dark"))

	ch, cancel := store.Subscribe()
	defer cancel()
	require.NoError(t, store.Set(KeyTheme, "dark"))

	select {
	case change := <-ch:
		t.Fatalf("unexpected change %+v", change)
	default:
	}
}

func TestStore_EmptyValueDeletes(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(KeyLanguage, "es"))
	require.NoError(t, store.Set(KeyLanguage, ""))
	assert.NotContains(t, store.Snapshot(), KeyLanguage)
}

func TestStore_LoginLogout(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SetMany(map[string]string{
		KeyLanguage:      "vi",
		KeySelectedModel: "gpt-4o",
	}))
	require.NoError(t, store.Login(Identity{
		UserID:   "u-42",
		Email:    "linh@example.com",
		Name:     "Nguyễn Linh",
		Provider: "google",
	}))
	require.NoError(t, store.Set(KeyCurrentConversation, "c1"))

	id, err := store.RequireIdentity()
	require.NoError(t, err)
	assert.Equal(t, "Nguyễn Linh", id.DisplayName())

	header := store.HeaderIdentity()
	assert.Equal(t, "u-42", header.UserID)
	assert.Equal(t, "Nguyễn Linh", header.UserName)
	assert.Equal(t, "google", header.LoginProvider)

	require.NoError(t, store.Logout())

	_, err = store.RequireIdentity()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, store.Get(KeyCurrentConversation))
	assert.Equal(t, "vi", store.Get(KeyLanguage), "preferences survive logout")
	assert.Equal(t, "gpt-4o", store.Get(KeySelectedModel))
}

func TestStore_Login_SwitchingUserClearsConversation(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Login(Identity{UserID: "u1", Provider: "email", Email: "a@example.com"}))
	require.NoError(t, store.Set(KeyCurrentConversation, "c1"))

	require.NoError(t, store.Login(Identity{UserID: "u1", Provider: "email", Email: "a@example.com"}))
	assert.Equal(t, "c1", store.Get(KeyCurrentConversation))

	require.NoError(t, store.Login(Identity{UserID: "u2", Provider: "email", Email: "b@example.com"}))
	assert.Empty(t, store.Get(KeyCurrentConversation))
	assert.Equal(t, "b@example.com", store.Get(KeyUserEmail))
}

func TestStore_Login_RequiresUserID(t *testing.T) {
	store := openTestStore(t)
	err := store.Login(Identity{Email: "a@example.com"})
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestIdentity_DisplayName(t *testing.T) {
	assert.Equal(t, "Linh", Identity{UserID: "u", Email: "e@x.io", Name: "Linh"}.DisplayName())
	assert.Equal(t, "e@x.io", Identity{UserID: "u", Email: "e@x.io"}.DisplayName())
	assert.Equal(t, "u", Identity{UserID: "u"}.DisplayName())
}

func TestStore_Subscribe_Cancel(t *testing.T) {
	store := openTestStore(t)
	ch, cancel := store.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	require.NoError(t, store.Set(KeyTheme, "light"))
}

func TestStore_ConcurrentSets(t *testing.T) {
	store := openTestStore(t)
	themes := []string{"light", "dark", "auto"}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Set(KeyTheme, themes[i%len(themes)]))
		}(i)
	}
	wg.Wait()

	reopened, err := Open(store.Path())
	require.NoError(t, err)
	assert.Equal(t, store.Get(KeyTheme), reopened.Get(KeyTheme))
}

func TestStore_Watch_ExternalChange(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(KeyLanguage, "en"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	ch, unsubscribe := store.Subscribe()
	defer unsubscribe()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	other, err := Open(store.Path())
	require.NoError(t, err)
	require.NoError(t, other.Set(KeyLanguage, "es"))

	change := waitChange(t, ch)
	assert.Equal(t, SourceExternal, change.Source)
	assert.Equal(t, []string{KeyLanguage}, change.Keys)
	assert.Equal(t, "es", store.Get(KeyLanguage))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestDiff(t *testing.T) {
	a := map[string]string{"x": "1", "y": "2"}
	b := map[string]string{"y": "3", "z": "4"}
	assert.Equal(t, []string{"x", "y", "z"}, diff(a, b))
	assert.Empty(t, diff(a, a))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 11)
	assert.Contains(t, keys, KeyOnboardingComplete)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "nexira_"), k)
	}
}
