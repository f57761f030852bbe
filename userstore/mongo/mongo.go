// Package mongo is an otpgate.UserDirectory on MongoDB. Email uniqueness is
// enforced by a unique index created by EnsureIndexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultDBName is the default for Config.DBName.
	DefaultDBName = "otpgate"
	// DefaultUsersCollectionName is the default for Config.UsersCollectionName.
	DefaultUsersCollectionName = "users"
)

// Config holds database and collection names. Zero values take the defaults.
type Config struct {
	DBName              string
	UsersCollectionName string
}

type Store struct {
	users *mongo.Collection
}

// userDoc is the stored form of a user.
type userDoc struct {
	// ID is the otpgate user id, not an ObjectID.
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"pwhash"`
	Headline     string    `bson:"headline,omitempty"`
	Bio          string    `bson:"bio,omitempty"`
	Skills       []string  `bson:"skills,omitempty"`
	Location     string    `bson:"location,omitempty"`
	Verified     bool      `bson:"verified"`
	Created      time.Time `bson:"c"`
	Updated      time.Time `bson:"u"`
}

// New returns a store on client. It panics if client is nil.
func New(client *mongo.Client, cfg Config) *Store {
	if client == nil {
		panic("mongo client must be provided")
	}
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	if cfg.UsersCollectionName == "" {
		cfg.UsersCollectionName = DefaultUsersCollectionName
	}
	return &Store{
		users: client.Database(cfg.DBName).Collection(cfg.UsersCollectionName),
	}
}

// Connect dials uri, pings the server and ensures indexes.
func Connect(ctx context.Context, uri string, cfg Config) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := New(client, cfg)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return s, client, nil
}

// EnsureIndexes creates the unique email index. It is safe to call repeatedly.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, u *otpgate.User) error {
	doc := userDoc{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Headline:     u.Profile.Headline,
		Bio:          u.Profile.Bio,
		Skills:       u.Profile.Skills,
		Location:     u.Profile.Location,
		Verified:     u.Verified,
		Created:      u.CreatedAt,
		Updated:      u.UpdatedAt,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return otpgate.ErrConflict
		}
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*otpgate.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByID(ctx context.Context, id string) (*otpgate.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*otpgate.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, otpgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("mongo find: %w", err)
	}

	return &otpgate.User{
		ID:           doc.ID,
		Email:        doc.Email,
		Name:         doc.Name,
		PasswordHash: doc.PasswordHash,
		Profile: otpgate.Profile{
			Headline: doc.Headline,
			Bio:      doc.Bio,
			Skills:   doc.Skills,
			Location: doc.Location,
		},
		Verified:  doc.Verified,
		CreatedAt: doc.Created.UTC(),
		UpdatedAt: doc.Updated.UTC(),
	}, nil
}
