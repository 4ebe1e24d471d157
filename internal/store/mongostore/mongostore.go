// Package mongostore implements tracking.Store on MongoDB. The roster is built
// with a single aggregation pipeline over the samples collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fieldtrack/internal/tracking"
)

const (
	SamplesCollection = "location_samples"
	UsersCollection   = "users"
)

var _ tracking.Store = (*Store)(nil)

type Store struct {
	client  *mongo.Client
	samples *mongo.Collection
	users   *mongo.Collection
	logger  zerolog.Logger
}

type sampleDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	OwnerID    primitive.ObjectID `bson:"ownerId"`
	Latitude   float64            `bson:"latitude"`
	Longitude  float64            `bson:"longitude"`
	Accuracy   *float64           `bson:"accuracy,omitempty"`
	CapturedAt time.Time          `bson:"capturedAt"`
	Source     string             `bson:"source"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

func (d sampleDoc) toSample() tracking.Sample {
	return tracking.Sample{
		ID:         d.ID.Hex(),
		OwnerID:    d.OwnerID.Hex(),
		Lat:        d.Latitude,
		Lng:        d.Longitude,
		Accuracy:   d.Accuracy,
		CapturedAt: d.CapturedAt.UTC(),
		Source:     d.Source,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

type userDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	Email       string             `bson:"email"`
	Phone       string             `bson:"phone,omitempty"`
	PhoneDigits string             `bson:"phoneDigits,omitempty"`
	Role        string             `bson:"role"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type latestDoc struct {
	OwnerID    primitive.ObjectID `bson:"ownerId"`
	Latitude   float64            `bson:"latitude"`
	Longitude  float64            `bson:"longitude"`
	Accuracy   *float64           `bson:"accuracy,omitempty"`
	CapturedAt time.Time          `bson:"capturedAt"`
	Source     string             `bson:"source"`
	Employee   *userDoc           `bson:"employee,omitempty"`
}

// Open connects to uri, pings the primary and ensures indexes.
func Open(ctx context.Context, uri, database string, logger zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	st := &Store{
		client:  client,
		samples: db.Collection(SamplesCollection),
		users:   db.Collection(UsersCollection),
		logger:  logger,
	}
	if err := st.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Info().Str("database", database).Msg("mongo store ready")
	return st, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.samples.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "capturedAt", Value: -1}}},
		{Keys: bson.D{{Key: "capturedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create sample indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) InsertSample(ctx context.Context, in tracking.NewSample) (tracking.Sample, error) {
	owner, err := primitive.ObjectIDFromHex(in.OwnerID)
	if err != nil {
		return tracking.Sample{}, fmt.Errorf("owner id: %w", err)
	}
	// BSON dates carry milliseconds
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := sampleDoc{
		ID:         primitive.NewObjectID(),
		OwnerID:    owner,
		Latitude:   in.Lat,
		Longitude:  in.Lng,
		Accuracy:   in.Accuracy,
		CapturedAt: in.CapturedAt.UTC().Truncate(time.Millisecond),
		Source:     in.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.samples.InsertOne(ctx, doc); err != nil {
		return tracking.Sample{}, err
	}
	return doc.toSample(), nil
}

func (s *Store) SamplesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]tracking.Sample, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, fmt.Errorf("owner id: %w", err)
	}
	filter := bson.D{
		{Key: "ownerId", Value: owner},
		{Key: "capturedAt", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "capturedAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.samples.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []sampleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]tracking.Sample, len(docs))
	for i, d := range docs {
		out[i] = d.toSample()
	}
	return out, nil
}

func (s *Store) MostRecentSample(ctx context.Context, ownerID string) (tracking.Sample, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return tracking.Sample{}, fmt.Errorf("owner id: %w", err)
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "capturedAt", Value: -1}, {Key: "_id", Value: -1}})
	var doc sampleDoc
	err = s.samples.FindOne(ctx, bson.D{{Key: "ownerId", Value: owner}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tracking.Sample{}, tracking.ErrNotFound
	}
	if err != nil {
		return tracking.Sample{}, err
	}
	return doc.toSample(), nil
}

func (s *Store) LatestPerOwner(ctx context.Context, f tracking.RosterFilter) ([]tracking.LatestLocation, error) {
	pipeline := append(rosterPipeline(f.Search),
		bson.D{{Key: "$sort", Value: bson.D{{Key: "capturedAt", Value: -1}, {Key: "ownerId", Value: 1}}}},
		bson.D{{Key: "$skip", Value: int64(f.Offset)}},
		bson.D{{Key: "$limit", Value: int64(f.Limit)}},
	)
	cur, err := s.samples.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	var docs []latestDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]tracking.LatestLocation, len(docs))
	for i, d := range docs {
		row := tracking.LatestLocation{
			OwnerID:    d.OwnerID.Hex(),
			Lat:        d.Latitude,
			Lng:        d.Longitude,
			Accuracy:   d.Accuracy,
			CapturedAt: d.CapturedAt.UTC(),
			Source:     d.Source,
			Employee:   tracking.Employee{OwnerID: d.OwnerID.Hex()},
		}
		if d.Employee != nil {
			row.Employee.Name = d.Employee.Name
			row.Employee.Email = d.Employee.Email
			row.Employee.Phone = d.Employee.Phone
		}
		out[i] = row
	}
	return out, nil
}

func (s *Store) CountLatestPerOwner(ctx context.Context, search string) (int, error) {
	pipeline := append(rosterPipeline(search), bson.D{{Key: "$count", Value: "total"}})
	cur, err := s.samples.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return 0, err
	}
	var res []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0].Total, nil
}

func (s *Store) UpsertUser(ctx context.Context, u tracking.UserProfile) error {
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	doc := userDoc{
		ID:          id,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		PhoneDigits: tracking.PhoneDigits(u.Phone),
		Role:        u.Role,
		UpdatedAt:   time.Now().UTC(),
	}
	_, err = s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	return err
}

// rosterPipeline reduces samples to the newest one per owner, left-joins the
// user profile and applies the search filter. Ties on capturedAt go to the
// larger _id, which is the later insert for ids minted by this process.
func rosterPipeline(search string) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "capturedAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$ownerId"},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: UsersCollection},
			{Key: "localField", Value: "ownerId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "employee"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$employee"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
	if m := searchMatch(search); m != nil {
		p = append(p, bson.D{{Key: "$match", Value: m}})
	}
	return p
}

func searchMatch(search string) bson.D {
	if search == "" {
		return nil
	}
	rx := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	or := bson.A{
		bson.D{{Key: "employee.name", Value: rx}},
		bson.D{{Key: "employee.email", Value: rx}},
		bson.D{{Key: "employee.phone", Value: rx}},
	}
	if tracking.IsDigits(search) {
		or = append(or, bson.D{{Key: "employee.phoneDigits", Value: rx}})
	}
	return bson.D{{Key: "$or", Value: or}}
}
