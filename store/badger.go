package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"tourdoc/apperr"
	"tourdoc/models"
)

// Key prefixes. Itineraries are keyed itinerary:<userID>:<itineraryID> so a
// user's records are one prefix scan away.
const (
	userKeyPrefix      = "user:"
	itineraryKeyPrefix = "itinerary:"
)

// BadgerStore is the embedded record store used by default in production.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a store in dir. An empty dir keeps everything in memory.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func userKey(userID string) []byte {
	return []byte(userKeyPrefix + userID)
}

func itineraryKey(key Key) []byte {
	return []byte(itineraryKeyPrefix + key.UserID + ":" + key.ItineraryID)
}

func (s *BadgerStore) CreateUser(_ context.Context, u *models.User) error {
	const op = "store.CreateUser"
	if err := validateUser(op, u); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(u.UserID)); err == nil {
			return apperr.Conflict(op, "user %q already exists", u.UserID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get user: %w", err)
		}

		taken := false
		err := scan(txn, userKeyPrefix, func(val []byte) error {
			var existing models.User
			if err := json.Unmarshal(val, &existing); err != nil {
				return err
			}
			if strings.EqualFold(existing.Username, u.Username) {
				taken = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict(op, "username %q is taken", u.Username)
		}
		return txn.Set(userKey(u.UserID), data)
	})
}

func (s *BadgerStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(userID), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, userNotFound("store.GetUser", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *BadgerStore) PutUser(_ context.Context, u *models.User) error {
	if err := validateUser("store.PutUser", u); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(u.UserID), data)
	})
}

func (s *BadgerStore) FindUser(_ context.Context, match func(*models.User) bool) (*models.User, error) {
	var found *models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, userKeyPrefix, func(val []byte) error {
			if found != nil {
				return nil
			}
			var u models.User
			if err := json.Unmarshal(val, &u); err != nil {
				return err
			}
			if match(&u) {
				found = &u
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	if found == nil {
		return nil, apperr.NotFound("store.FindUser", "user not found")
	}
	return found, nil
}

func (s *BadgerStore) PutItinerary(_ context.Context, it *models.Itinerary) error {
	if err := validateItinerary("store.PutItinerary", it); err != nil {
		return err
	}
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal itinerary: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itineraryKey(Key{UserID: it.UserID, ItineraryID: it.ID}), data)
	})
}

func (s *BadgerStore) GetItinerary(_ context.Context, key Key) (*models.Itinerary, error) {
	var it models.Itinerary
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, itineraryKey(key), &it)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, itineraryNotFound("store.GetItinerary", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get itinerary: %w", err)
	}
	return &it, nil
}

func (s *BadgerStore) ListItineraries(_ context.Context, userID string) ([]models.Itinerary, error) {
	out := []models.Itinerary{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, itineraryKeyPrefix+userID+":", func(val []byte) error {
			var it models.Itinerary
			if err := json.Unmarshal(val, &it); err != nil {
				return err
			}
			out = append(out, it)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list itineraries: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) FindItineraries(_ context.Context, match func(*models.Itinerary) bool) ([]models.Itinerary, error) {
	var out []models.Itinerary
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, itineraryKeyPrefix, func(val []byte) error {
			var it models.Itinerary
			if err := json.Unmarshal(val, &it); err != nil {
				return err
			}
			if match(&it) {
				out = append(out, it)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan itineraries: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scan(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
