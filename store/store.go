// Package store persists users and their itineraries.
//
// Itineraries live under their owner and are addressed by the compound key
// (UserID, ItineraryID). Writes replace whole records: the last writer wins.
package store

import (
	"context"
	"strings"

	"tourdoc/apperr"
	"tourdoc/models"
)

type Key struct {
	UserID      string
	ItineraryID string
}

type Store interface {
	// CreateUser inserts u and fails with a conflict if the ID or username is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	PutUser(ctx context.Context, u *models.User) error
	FindUser(ctx context.Context, match func(*models.User) bool) (*models.User, error)

	// PutItinerary inserts or replaces it; it.UserID and it.ID are required.
	PutItinerary(ctx context.Context, it *models.Itinerary) error
	GetItinerary(ctx context.Context, key Key) (*models.Itinerary, error)
	ListItineraries(ctx context.Context, userID string) ([]models.Itinerary, error)
	FindItineraries(ctx context.Context, match func(*models.Itinerary) bool) ([]models.Itinerary, error)

	Close() error
}

// FindUserByUsername matches usernames case-insensitively.
func FindUserByUsername(ctx context.Context, s Store, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	return s.FindUser(ctx, func(u *models.User) bool {
		return strings.EqualFold(u.Username, username)
	})
}

// FindItinerary locates an itinerary by ID alone by scanning every user's records.
func FindItinerary(ctx context.Context, s Store, itineraryID string) (*models.Itinerary, error) {
	found, err := s.FindItineraries(ctx, func(it *models.Itinerary) bool {
		return it.ID == itineraryID
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperr.NotFound("store.FindItinerary", "itinerary %q not found", itineraryID)
	}
	return &found[0], nil
}

func validateItinerary(op string, it *models.Itinerary) error {
	if it == nil || strings.TrimSpace(it.ID) == "" {
		return apperr.Validation(op, "itinerary id is required")
	}
	if strings.TrimSpace(it.UserID) == "" {
		return apperr.Validation(op, "itinerary %q has no owner", it.ID)
	}
	return nil
}

func validateUser(op string, u *models.User) error {
	if u == nil || strings.TrimSpace(u.UserID) == "" {
		return apperr.Validation(op, "user id is required")
	}
	if strings.TrimSpace(u.Username) == "" {
		return apperr.Validation(op, "username is required")
	}
	return nil
}

func userNotFound(op, userID string) error {
	return apperr.NotFound(op, "user %q not found", userID)
}

func itineraryNotFound(op string, key Key) error {
	return apperr.NotFound(op, "itinerary %q not found for user %q", key.ItineraryID, key.UserID)
}
