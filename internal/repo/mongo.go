package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
)

type MongoRepo struct {
	cli *mongo.Client
	db  *mongo.Database
}

func NewMongoRepo(ctx context.Context, uri, dbName string) (*MongoRepo, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cli, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoRepo{cli: cli, db: cli.Database(dbName)}, nil
}

func (r *MongoRepo) Close(ctx context.Context) error {
	return r.cli.Disconnect(ctx)
}

func (r *MongoRepo) coll(p partition.Config) *mongo.Collection {
	return r.db.Collection(p.Collection)
}

func (r *MongoRepo) Migrate(ctx context.Context, parts []partition.Config) error {
	for _, p := range parts {
		_, err := r.coll(p).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "reset_token_hash", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
			{
				Keys:    bson.D{{Key: "verify_token_hash", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		})
		if err != nil {
			return fmt.Errorf("indexes %s: %w", p.Collection, err)
		}
	}
	return nil
}

func (r *MongoRepo) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx, readpref.Primary())
}

func (r *MongoRepo) findOne(ctx context.Context, p partition.Config, filter bson.M) (*models.Principal, error) {
	var pr models.Principal
	err := r.coll(p).FindOne(ctx, filter).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (r *MongoRepo) findOneAndUpdate(ctx context.Context, p partition.Config, filter, update bson.M) (*models.Principal, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var pr models.Principal
	err := r.coll(p).FindOneAndUpdate(ctx, filter, update, opts).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (r *MongoRepo) FindByEmail(ctx context.Context, p partition.Config, email string) (*models.Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, p, bson.M{"email": email})
}

func (r *MongoRepo) FindByID(ctx context.Context, p partition.Config, id string) (*models.Principal, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, p, bson.M{"_id": id})
}

func (r *MongoRepo) Create(ctx context.Context, p partition.Config, pr *models.Principal) error {
	pr.Email = NormalizeEmail(pr.Email)
	pr.Partition = p.Name
	now := time.Now().UTC()
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = now
	}
	if pr.UpdatedAt.IsZero() {
		pr.UpdatedAt = now
	}

	_, err := r.coll(p).InsertOne(ctx, pr)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (r *MongoRepo) updateByID(ctx context.Context, p partition.Config, id string, update bson.M) error {
	res, err := r.coll(p).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) RecordLogin(ctx context.Context, p partition.Config, id string, at time.Time) error {
	at = at.UTC()
	return r.updateByID(ctx, p, id, bson.M{
		"$set":   bson.M{"last_login_at": at, "failed_logins": 0, "updated_at": at},
		"$unset": bson.M{"locked_until": ""},
	})
}

func (r *MongoRepo) RecordFailedLogin(ctx context.Context, p partition.Config, id string, maxFailures int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	now = now.UTC()
	pr, err := r.findOneAndUpdate(ctx, p, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"failed_logins": 1},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return nil, err
	}
	if maxFailures <= 0 || pr.FailedLogins < maxFailures {
		return nil, nil
	}

	until := now.Add(lockFor)
	if err := r.updateByID(ctx, p, id, bson.M{
		"$set": bson.M{"failed_logins": 0, "locked_until": until},
	}); err != nil {
		return nil, err
	}
	return &until, nil
}

func (r *MongoRepo) SetResetToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, p, id, bson.M{"$set": bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt.UTC(),
		"updated_at":             time.Now().UTC(),
	}})
}

func (r *MongoRepo) SetVerifyToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, p, id, bson.M{"$set": bson.M{
		"verify_token_hash":       tokenHash,
		"verify_token_expires_at": expiresAt.UTC(),
		"updated_at":              time.Now().UTC(),
	}})
}

func (r *MongoRepo) RedeemResetToken(ctx context.Context, p partition.Config, tokenHash, newPasswordHash string, now time.Time) (*models.Principal, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	now = now.UTC()
	return r.findOneAndUpdate(ctx, p,
		bson.M{"reset_token_hash": tokenHash, "reset_token_expires_at": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"password_hash": newPasswordHash, "failed_logins": 0, "updated_at": now},
			"$unset": bson.M{"reset_token_hash": "", "reset_token_expires_at": "", "locked_until": ""},
		})
}

func (r *MongoRepo) RedeemVerifyToken(ctx context.Context, p partition.Config, tokenHash string, now time.Time) (*models.Principal, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	now = now.UTC()
	filter := bson.M{"verify_token_hash": tokenHash, "verify_token_expires_at": bson.M{"$gt": now}}

	// Pipeline update so the status promotion and token clearing land in
	// the same write.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"email_verified": true,
			"updated_at":     now,
			"status": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$status", string(models.StatusPendingVerification)}},
				string(models.StatusActive),
				"$status",
			}},
		}}},
		{{Key: "$unset", Value: bson.A{"verify_token_hash", "verify_token_expires_at"}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var pr models.Principal
	err := r.coll(p).FindOneAndUpdate(ctx, filter, update, opts).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (r *MongoRepo) UpdateStatus(ctx context.Context, p partition.Config, id string, status models.Status, now time.Time) (*models.Principal, error) {
	return r.findOneAndUpdate(ctx, p, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": string(status), "updated_at": now.UTC()},
	})
}
