// Package storagetests provides common acceptance tests for storage.Store
// implementations.
package storagetests

import (
	"testing"

	"github.com/dpup/passage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Account struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Logins   *int   `json:"logins"` // Ptr fields allow filtering on zero values.
}

func (a Account) PK() string {
	return a.ID
}

type Session struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

func (s Session) PK() string {
	return s.ID
}

func pint(i int) *int {
	return &i
}

// Run executes the acceptance suite against a fresh store per subtest.
func Run(t *testing.T, newStore func() storage.Store) {
	t.Run("CreateReadRoundTrip", func(t *testing.T) {
		a := Account{ID: "1", Email: "ada@example.com", Provider: "google"}
		b := Account{ID: "2", Email: "bob@example.com", Provider: "github"}

		store := newStore()
		require.NoError(t, store.Create(a, b))

		var a2, b2 Account
		require.NoError(t, store.Read("1", &a2))
		require.NoError(t, store.Read("2", &b2))
		assert.Equal(t, a, a2)
		assert.Equal(t, b, b2)
	})

	t.Run("CreateDuplicateFails", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(Account{ID: "1", Email: "ada@example.com"}))
		err := store.Create(Account{ID: "1", Email: "imposter@example.com"})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("ReadMissing", func(t *testing.T) {
		store := newStore()
		var a Account
		assert.ErrorIs(t, store.Read("nope", &a), storage.ErrNotFound)
	})

	t.Run("ReadNilModel", func(t *testing.T) {
		store := newStore()
		var a *Account
		assert.Error(t, store.Read("1", a))
	})

	t.Run("UpdateRequiresExisting", func(t *testing.T) {
		store := newStore()
		err := store.Update(Account{ID: "ghost", Email: "x@example.com"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateRoundTrip", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(Account{ID: "1", Email: "old@example.com"}))
		require.NoError(t, store.Update(Account{ID: "1", Email: "new@example.com"}))

		var a Account
		require.NoError(t, store.Read("1", &a))
		assert.Equal(t, "new@example.com", a.Email)
	})

	t.Run("UpsertInsertsAndUpdates", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Upsert(Account{ID: "1", Email: "first@example.com"}))
		require.NoError(t, store.Upsert(Account{ID: "1", Email: "second@example.com"}))

		var a Account
		require.NoError(t, store.Read("1", &a))
		assert.Equal(t, "second@example.com", a.Email)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(Account{ID: "1", Email: "ada@example.com"}))
		require.NoError(t, store.Delete(Account{ID: "1"}))
		assert.ErrorIs(t, store.Read("1", &Account{}), storage.ErrNotFound)
		assert.ErrorIs(t, store.Delete(Account{ID: "1"}), storage.ErrNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(Account{ID: "1", Email: "ada@example.com"}))

		ok, err := store.Exists("1", &Account{})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists("2", &Account{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ListFiltersByField", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(
			Account{ID: "1", Email: "ada@example.com", Provider: "google", Logins: pint(3)},
			Account{ID: "2", Email: "bob@example.com", Provider: "github", Logins: pint(0)},
			Account{ID: "3", Email: "cat@example.com", Provider: "google", Logins: pint(1)},
		))

		var googs []Account
		require.NoError(t, store.List(&googs, Account{Provider: "google"}))
		require.Len(t, googs, 2)
		assert.Equal(t, "1", googs[0].ID)
		assert.Equal(t, "3", googs[1].ID)

		// Pointer filters match zero values.
		var unused []Account
		require.NoError(t, store.List(&unused, Account{Logins: pint(0)}))
		require.Len(t, unused, 1)
		assert.Equal(t, "2", unused[0].ID)
	})

	t.Run("ListPointerModels", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(
			&Account{ID: "1", Email: "ada@example.com", Provider: "google"},
			&Account{ID: "2", Email: "bob@example.com", Provider: "github"},
		))

		var all []*Account
		require.NoError(t, store.List(&all, &Account{}))
		require.Len(t, all, 2)
		assert.Equal(t, "ada@example.com", all[0].Email)

		var googs []*Account
		require.NoError(t, store.List(&googs, &Account{Provider: "google"}))
		require.Len(t, googs, 1)
		assert.Equal(t, "1", googs[0].ID)

		var none []*Account
		require.NoError(t, store.List(&none, &Account{Provider: "gitlab"}))
		assert.Empty(t, none)
	})

	t.Run("ListNilFilter", func(t *testing.T) {
		store := newStore()
		var all []*Account
		var nilFilter *Account
		assert.ErrorIs(t, store.List(&all, nilFilter), storage.ErrNilModel)
	})

	t.Run("ListRequiresSlice", func(t *testing.T) {
		store := newStore()
		assert.ErrorIs(t, store.List(Account{}, Account{}), storage.ErrSliceRequired)
	})

	t.Run("ListTypeMismatch", func(t *testing.T) {
		store := newStore()
		var sessions []Session
		assert.ErrorIs(t, store.List(&sessions, Account{}), storage.ErrTypeMismatch)
	})

	t.Run("ModelsAreNamespaced", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Create(Account{ID: "1", Email: "ada@example.com"}))
		require.NoError(t, store.Create(Session{ID: "1", Subject: "ada"}))

		var a Account
		var s Session
		require.NoError(t, store.Read("1", &a))
		require.NoError(t, store.Read("1", &s))
		assert.Equal(t, "ada@example.com", a.Email)
		assert.Equal(t, "ada", s.Subject)
	})
}
