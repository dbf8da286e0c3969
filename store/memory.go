package store

import (
	"context"
	"strings"
	"sync"

	"tourdoc/apperr"
	"tourdoc/models"
)

// MemoryStore keeps records in maps: users by ID and itineraries nested by
// owner, the same shape as the JSON documents the records are exported to.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]models.User
	itineraries map[string]map[string]models.Itinerary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]models.User),
		itineraries: make(map[string]map[string]models.Itinerary),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	const op = "store.CreateUser"
	if err := validateUser(op, u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.UserID]; ok {
		return apperr.Conflict(op, "user %q already exists", u.UserID)
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return apperr.Conflict(op, "username %q is taken", u.Username)
		}
	}
	s.users[u.UserID] = *u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, userNotFound("store.GetUser", userID)
	}
	return &u, nil
}

func (s *MemoryStore) PutUser(_ context.Context, u *models.User) error {
	if err := validateUser("store.PutUser", u); err != nil {
		return err
	}
	s.mu.Lock()
	s.users[u.UserID] = *u
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindUser(_ context.Context, match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(&u) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("store.FindUser", "user not found")
}

func (s *MemoryStore) PutItinerary(_ context.Context, it *models.Itinerary) error {
	if err := validateItinerary("store.PutItinerary", it); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.itineraries[it.UserID]
	if !ok {
		byID = make(map[string]models.Itinerary)
		s.itineraries[it.UserID] = byID
	}
	byID[it.ID] = cloneItinerary(*it)
	return nil
}

func (s *MemoryStore) GetItinerary(_ context.Context, key Key) (*models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.itineraries[key.UserID][key.ItineraryID]
	if !ok {
		return nil, itineraryNotFound("store.GetItinerary", key)
	}
	it = cloneItinerary(it)
	return &it, nil
}

func (s *MemoryStore) ListItineraries(_ context.Context, userID string) ([]models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Itinerary, 0, len(s.itineraries[userID]))
	for _, it := range s.itineraries[userID] {
		out = append(out, cloneItinerary(it))
	}
	return out, nil
}

func (s *MemoryStore) FindItineraries(_ context.Context, match func(*models.Itinerary) bool) ([]models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Itinerary
	for _, byID := range s.itineraries {
		for _, it := range byID {
			if match(&it) {
				out = append(out, cloneItinerary(it))
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneItinerary copies the slices so callers cannot mutate stored records.
func cloneItinerary(it models.Itinerary) models.Itinerary {
	plans := make([]models.DailyPlan, len(it.Data.DailyPlans))
	for i, p := range it.Data.DailyPlans {
		if p.Meals != nil {
			m := *p.Meals
			p.Meals = &m
		}
		plans[i] = p
	}
	it.Data.DailyPlans = plans
	return it
}
