package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "authd_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.close() })

	return map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sqlite,
	}
}

func TestStoreCreateAndLookup(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			u, err := store.CreateUser("a@x.com", "hash1")
			require.NoError(t, err)
			require.NotZero(t, u.ID)
			require.False(t, u.IsVerified)
			require.Nil(t, u.VerifiedAt)
			require.False(t, u.LastPasswordReset.IsZero())

			byEmail, err := store.GetUserByEmail("a@x.com")
			require.NoError(t, err)
			require.NotNil(t, byEmail)
			require.Equal(t, u.ID, byEmail.ID)

			byID, err := store.GetUserByID(u.ID)
			require.NoError(t, err)
			require.NotNil(t, byID)
			require.Equal(t, "a@x.com", byID.Email)

			missing, err := store.GetUserByEmail("ghost@x.com")
			require.NoError(t, err)
			require.Nil(t, missing)
		})
	}
}

func TestStoreDuplicateEmail(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.CreateUser("dup@x.com", "hash1")
			require.NoError(t, err)
			_, err = store.CreateUser("dup@x.com", "hash2")
			require.ErrorIs(t, err, ErrDuplicateEmail)
		})
	}
}

func TestStoreUpdatePersistsLifecycleFields(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			u, err := store.CreateUser("b@x.com", "hash1")
			require.NoError(t, err)

			verifiedAt := time.Now().UTC().Truncate(time.Millisecond)
			reset := verifiedAt.Add(time.Hour)
			u.IsVerified = true
			u.VerifiedAt = &verifiedAt
			u.PasswordHash = "hash2"
			u.LastPasswordReset = reset
			require.NoError(t, store.UpdateUser(u))

			got, err := store.GetUserByEmail("b@x.com")
			require.NoError(t, err)
			require.True(t, got.IsVerified)
			require.NotNil(t, got.VerifiedAt)
			require.Equal(t, "hash2", got.PasswordHash)
			require.WithinDuration(t, reset, got.LastPasswordReset, time.Millisecond)
		})
	}
}

func TestStoreInsertEvent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			id := int64(7)
			err := store.InsertEvent(&Event{
				Name:     "login",
				UserID:   &id,
				Metadata: map[string]interface{}{"ip": "127.0.0.1"},
			})
			require.NoError(t, err)
		})
	}
}
