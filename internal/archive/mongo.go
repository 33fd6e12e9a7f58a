// Package archive keeps scheduled copies of the supplies report on disk and
// snapshots of its data in MongoDB.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoSnapshot is returned by Latest when nothing was archived yet.
var ErrNoSnapshot = errors.New("no report snapshot archived")

// SnapshotItem is one supply as it appeared in an archived report.
type SnapshotItem struct {
	ItemID    int64  `bson:"item_id" json:"item_id"`
	Name      string `bson:"item_name" json:"item_name"`
	Unit      string `bson:"unit" json:"unit"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	Trend     string `bson:"trend" json:"trend"`
	ChangePct string `bson:"change_pct" json:"change_pct"`
}

// ReportSnapshot is the archived data behind one scheduled report.
type ReportSnapshot struct {
	GeneratedAt time.Time      `bson:"generated_at" json:"generated_at"`
	File        string         `bson:"file,omitempty" json:"file,omitempty"`
	Items       []SnapshotItem `bson:"items" json:"items"`
	Trends      map[string]int `bson:"trends" json:"trends"`
}

// Store persists report snapshots.
type Store interface {
	Save(ctx context.Context, snapshot ReportSnapshot) error
	Latest(ctx context.Context) (ReportSnapshot, error)
}

// MongoArchive stores snapshots in a MongoDB collection.
type MongoArchive struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoArchive connects to uri and verifies the connection.
func NewMongoArchive(ctx context.Context, uri, dbName, collName string) (*MongoArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoArchive{client: client, dbName: dbName, collName: collName}, nil
}

func (a *MongoArchive) collection() *mongo.Collection {
	return a.client.Database(a.dbName).Collection(a.collName)
}

// Save inserts a snapshot.
func (a *MongoArchive) Save(ctx context.Context, snapshot ReportSnapshot) error {
	if _, err := a.collection().InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("insert report snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recently generated snapshot.
func (a *MongoArchive) Latest(ctx context.Context) (ReportSnapshot, error) {
	var snapshot ReportSnapshot
	opts := options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}})
	err := a.collection().FindOne(ctx, bson.D{}, opts).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ReportSnapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return ReportSnapshot{}, fmt.Errorf("find latest report snapshot: %w", err)
	}
	return snapshot, nil
}

// Close disconnects from MongoDB.
func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

var _ Store = (*MongoArchive)(nil)
