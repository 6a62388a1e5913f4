// Package storage persists the credential pair across restarts in
// BadgerDB so the client can resume a session without a fresh login.
package storage

import (
	"carelink/contract"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const sessionKey = "session:current"

type SessionStore struct {
	db *badger.DB
}

func NewSessionStore(db *badger.DB) *SessionStore {
	return &SessionStore{db: db}
}

// storedSession is the on-disk shape. Kept separate from
// contract.Credentials so the persisted format can evolve on its own.
type storedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

// Load returns the persisted credential pair. A missing key means no
// prior session, not an error.
func (s *SessionStore) Load() (contract.Credentials, bool, error) {
	var stored storedSession

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})

	if err == badger.ErrKeyNotFound {
		return contract.Credentials{}, false, nil
	}
	if err != nil {
		return contract.Credentials{}, false, fmt.Errorf("loading session: %w", err)
	}

	return contract.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		UserID:       stored.UserID,
	}, true, nil
}

func (s *SessionStore) Save(creds contract.Credentials) error {
	data, err := json.Marshal(storedSession{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		UserID:       creds.UserID,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionKey), data)
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Clear drops the persisted pair. Deleting an absent key is fine.
func (s *SessionStore) Clear() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionKey))
	})
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
