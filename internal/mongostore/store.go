// Package mongostore keeps the pie ledger in MongoDB, using the pies, slices
// and averages collections.
//
// MongoDB gives no transaction here, so the open check in InsertSlice and the
// flip in MarkSettled are separate round trips. A single process serializes
// them through pie.Locks; running several bot processes against one database
// needs the Postgres or SQLite store instead.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/susu3304/piebot/internal/pie"
)

const (
	colPies     = "pies"
	colSlices   = "slices"
	colAverages = "averages"
)

var _ pie.Store = (*Store)(nil)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) InsertPie(ctx context.Context, p *pie.Pie) error {
	m, err := toPieModel(p)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colPies).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pie.ErrPieExists
		}
		return fmt.Errorf("mongostore: insert pie: %w", err)
	}
	return nil
}

func (s *Store) PieByID(ctx context.Context, id string) (*pie.Pie, error) {
	return s.findPie(ctx, bson.M{"_id": id})
}

func (s *Store) PieByToken(ctx context.Context, token pie.Token) (*pie.Pie, error) {
	return s.findPie(ctx, bson.M{"ts": string(token)})
}

func (s *Store) findPie(ctx context.Context, filter bson.M) (*pie.Pie, error) {
	var m pieModel
	if err := s.db.Collection(colPies).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, pie.ErrPieNotFound
		}
		return nil, fmt.Errorf("mongostore: find pie: %w", err)
	}
	return fromPieModel(&m)
}

func (s *Store) OpenPies(ctx context.Context) ([]*pie.Pie, error) {
	cur, err := s.db.Collection(colPies).Find(ctx,
		bson.M{"settled": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: open pies: %w", err)
	}
	var models []pieModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: open pies: %w", err)
	}

	out := make([]*pie.Pie, 0, len(models))
	for i := range models {
		p, err := fromPieModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) InsertSlice(ctx context.Context, sl *pie.Slice) error {
	p, err := s.PieByID(ctx, sl.PieID)
	if err != nil {
		return err
	}
	if p.Settled {
		return pie.ErrPieAlreadySettled
	}
	m, err := toSliceModel(sl)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colSlices).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("mongostore: insert slice: %w", err)
	}
	return nil
}

func (s *Store) SlicesByPie(ctx context.Context, pieID string) ([]*pie.Slice, error) {
	cur, err := s.db.Collection(colSlices).Find(ctx,
		bson.M{"pie_id": pieID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: slices: %w", err)
	}
	var models []sliceModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: slices: %w", err)
	}

	out := make([]*pie.Slice, 0, len(models))
	for i := range models {
		sl, err := fromSliceModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, nil
}

func (s *Store) UpsertSettlement(ctx context.Context, st *pie.Settlement) error {
	m, err := toAverageModel(st)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colAverages).UpdateOne(ctx,
		bson.M{"_id": m.PieID},
		bson.M{"$set": bson.M{
			"user":        m.Claimant,
			"total":       m.Total,
			"slice_count": m.SliceCount,
			"average":     m.Average,
			"percentage":  m.Percentage,
			"settled_at":  m.SettledAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: upsert average: %w", err)
	}
	return nil
}

func (s *Store) Settlements(ctx context.Context) ([]*pie.Settlement, error) {
	cur, err := s.db.Collection(colAverages).Find(ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: averages: %w", err)
	}
	var models []averageModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: averages: %w", err)
	}

	out := make([]*pie.Settlement, 0, len(models))
	for i := range models {
		st, err := fromAverageModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) MarkSettled(ctx context.Context, pieID string) error {
	res, err := s.db.Collection(colPies).UpdateOne(ctx,
		bson.M{"_id": pieID, "settled": false},
		bson.M{"$set": bson.M{"settled": true}},
	)
	if err != nil {
		return fmt.Errorf("mongostore: mark settled: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.db.Collection(colPies).CountDocuments(ctx, bson.M{"_id": pieID})
	if err != nil {
		return fmt.Errorf("mongostore: mark settled: %w", err)
	}
	if n == 0 {
		return pie.ErrPieNotFound
	}
	return pie.ErrPieAlreadySettled
}

func (s *Store) Clear(ctx context.Context) error {
	for _, col := range []string{colAverages, colSlices, colPies} {
		if _, err := s.db.Collection(col).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("mongostore: clear %s: %w", col, err)
		}
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPies: {
			{
				Keys:    bson.D{{Key: "ts", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "settled", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSlices: {
			{Keys: bson.D{{Key: "pie_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
