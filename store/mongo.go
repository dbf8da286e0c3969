package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tourdoc/apperr"
	"tourdoc/db"
	"tourdoc/models"
)

// MongoStore keeps users and itineraries in two collections; itineraries carry
// their owner's userId and are unique on (userId, id).
type MongoStore struct {
	client      *mongo.Client
	users       *mongo.Collection
	itineraries *mongo.Collection
}

func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	d := client.Database(database)
	s := &MongoStore{
		client:      client,
		users:       d.Collection(db.UsersCollection),
		itineraries: d.Collection(db.ItinerariesCollection),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).
			SetCollation(&options.Collation{Locale: "en", Strength: 2})},
	})
	if err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}
	_, err = s.itineraries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "id", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create itinerary indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	const op = "store.CreateUser"
	if err := validateUser(op, u); err != nil {
		return err
	}
	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict(op, "username %q is taken", u.Username)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"userId": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, userNotFound("store.GetUser", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) PutUser(ctx context.Context, u *models.User) error {
	if err := validateUser("store.PutUser", u); err != nil {
		return err
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"userId": u.UserID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace user: %w", err)
	}
	return nil
}

func (s *MongoStore) FindUser(ctx context.Context, match func(*models.User) bool) (*models.User, error) {
	users, err := findAndDecode[models.User](ctx, s.users, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	for i := range users {
		if match(&users[i]) {
			return &users[i], nil
		}
	}
	return nil, apperr.NotFound("store.FindUser", "user not found")
}

func (s *MongoStore) PutItinerary(ctx context.Context, it *models.Itinerary) error {
	if err := validateItinerary("store.PutItinerary", it); err != nil {
		return err
	}
	filter := bson.M{"userId": it.UserID, "id": it.ID}
	_, err := s.itineraries.ReplaceOne(ctx, filter, it, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace itinerary: %w", err)
	}
	return nil
}

func (s *MongoStore) GetItinerary(ctx context.Context, key Key) (*models.Itinerary, error) {
	var it models.Itinerary
	err := s.itineraries.FindOne(ctx, bson.M{"userId": key.UserID, "id": key.ItineraryID}).Decode(&it)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, itineraryNotFound("store.GetItinerary", key)
	}
	if err != nil {
		return nil, fmt.Errorf("find itinerary: %w", err)
	}
	return &it, nil
}

func (s *MongoStore) ListItineraries(ctx context.Context, userID string) ([]models.Itinerary, error) {
	out, err := findAndDecode[models.Itinerary](ctx, s.itineraries, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("list itineraries: %w", err)
	}
	return out, nil
}

func (s *MongoStore) FindItineraries(ctx context.Context, match func(*models.Itinerary) bool) ([]models.Itinerary, error) {
	all, err := findAndDecode[models.Itinerary](ctx, s.itineraries, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("scan itineraries: %w", err)
	}
	var out []models.Itinerary
	for i := range all {
		if match(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func findAndDecode[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) ([]T, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
