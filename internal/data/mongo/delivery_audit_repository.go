// Package mongo keeps an audit trail of webhook deliveries that were given up on
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/notification"
)

const (
	// DeliveryFailureCollectionName is the name of the audit collection in MongoDB
	DeliveryFailureCollectionName = "notification_failures"
)

// DeliveryFailure is one permanently failed webhook job as stored in MongoDB
type DeliveryFailure struct {
	JobID      int64     `bson:"job_id"`
	PaymentID  string    `bson:"payment_id"`
	MerchantID string    `bson:"merchant_id"`
	Event      string    `bson:"event"`
	TargetURL  string    `bson:"target_url"`
	Attempts   int       `bson:"attempts"`
	LastError  string    `bson:"last_error"`
	Payload    string    `bson:"payload"`
	CreatedAt  time.Time `bson:"created_at"`
	FailedAt   time.Time `bson:"failed_at"`
}

// DeliveryAuditRepository writes and reads delivery failures
type DeliveryAuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

func NewDeliveryAuditRepository(logger *slog.Logger, db *mongo.Database) *DeliveryAuditRepository {
	return &DeliveryAuditRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the index that backs lookups by payment
func (r *DeliveryAuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(DeliveryFailureCollectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "payment_id", Value: 1}, {Key: "failed_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create delivery failure index: %w", err)
	}
	return nil
}

// RecordFailure stores the final state of a job that exhausted its attempts
func (r *DeliveryAuditRepository) RecordFailure(ctx context.Context, job *notification.Job) error {
	collection := r.db.Collection(DeliveryFailureCollectionName)

	doc := DeliveryFailure{
		JobID:      job.ID,
		PaymentID:  job.PaymentID.String(),
		MerchantID: job.MerchantID.String(),
		Event:      string(job.Event),
		TargetURL:  job.TargetURL,
		Attempts:   job.AttemptCount,
		LastError:  job.LastError,
		Payload:    string(job.Payload),
		CreatedAt:  job.CreatedAt,
		FailedAt:   time.Now().UTC(),
	}
	if job.LastAttemptAt != nil {
		doc.FailedAt = *job.LastAttemptAt
	}

	if _, err := collection.InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to record delivery failure",
			"job_id", job.ID,
			"payment_id", doc.PaymentID,
			"error", err)
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	return nil
}

// GetByPaymentID returns the recorded failures for a payment, newest first
func (r *DeliveryAuditRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*DeliveryFailure, error) {
	collection := r.db.Collection(DeliveryFailureCollectionName)

	filter := bson.M{"payment_id": paymentID.String()}
	opts := options.Find().SetSort(bson.M{"failed_at": -1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get delivery failures",
			"payment_id", paymentID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get delivery failures: %w", err)
	}
	defer cursor.Close(ctx)

	var failures []*DeliveryFailure
	if err := cursor.All(ctx, &failures); err != nil {
		r.logger.Error("Failed to decode delivery failures",
			"payment_id", paymentID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode delivery failures: %w", err)
	}

	return failures, nil
}
