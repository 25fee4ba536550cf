// Package archive persists chaincode events into an off-chain MongoDB store
// so the prescription history can be queried without replaying the ledger.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mesikahq/rxledger/internal/prescription"
)

type Config struct {
	URI            string
	Database       string
	Collection     string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// Connect opens and verifies a MongoDB client.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Record is the stored projection of one chaincode event.
type Record struct {
	BlockNumber    uint64    `bson:"block_number"`
	TransactionID  string    `bson:"transaction_id"`
	EventName      string    `bson:"event_name"`
	PrescriptionID string    `bson:"prescription_id"`
	Status         string    `bson:"status"`
	Document       bson.M    `bson:"document"`
	ReceivedAt     time.Time `bson:"received_at"`
}

type Service struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewService(client *mongo.Client, database, collection string, logger *zap.Logger) *Service {
	return &Service{
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}
}

// HandleEvent implements prescription.Sink. Events are stored as observed, in
// commit order, without deduplication.
func (s *Service) HandleEvent(ctx context.Context, event *prescription.Event) error {
	doc := bson.M{
		"ID":          event.Prescription.ID,
		"Cpf":         event.Prescription.Cpf,
		"Name":        event.Prescription.Name,
		"Medications": event.Prescription.Medications,
		"Status":      event.Prescription.Status,
		"DoctorName":  event.Prescription.DoctorName,
		"DoctorCrm":   event.Prescription.DoctorCrm,
	}

	record := Record{
		BlockNumber:    event.BlockNumber,
		TransactionID:  event.TransactionID,
		EventName:      event.Name,
		PrescriptionID: event.Prescription.ID,
		Status:         event.Prescription.Status,
		Document:       doc,
		ReceivedAt:     time.Now().UTC(),
	}

	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to archive %s event for %s: %w",
			event.Name, event.Prescription.ID, err)
	}

	s.logger.Debug("chaincode event archived",
		zap.String("event", event.Name),
		zap.String("id", event.Prescription.ID),
		zap.Uint64("block", event.BlockNumber))
	return nil
}

// History returns the archived events of one prescription in commit order.
func (s *Service) History(ctx context.Context, prescriptionID string) ([]Record, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"prescription_id": prescriptionID},
		options.Find().SetSort(bson.D{{Key: "block_number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
