package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
)

const settlementsCollection = "settlements"

type firestoreSettlementRepository struct {
	client *firestore.Client
}

func NewFirestoreSettlementRepository(client *firestore.Client) repository.SettlementRepository {
	return &firestoreSettlementRepository{
		client: client,
	}
}

func (r *firestoreSettlementRepository) Create(ctx context.Context, record *entity.SettlementRecord) error {
	// Create, not Set: the record id is the idempotency key and an
	// existing record must win.
	_, err := r.client.Collection(settlementsCollection).Doc(record.ID).Create(ctx, record)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Settlement record already exists", err)
		}
		return errors.Upstream("Failed to create settlement record", err)
	}
	return nil
}

func (r *firestoreSettlementRepository) GetByID(ctx context.Context, id string) (*entity.SettlementRecord, error) {
	doc, err := r.client.Collection(settlementsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Settlement record", err)
		}
		return nil, errors.Upstream("Failed to get settlement record", err)
	}

	var record entity.SettlementRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, errors.Internal("Failed to parse settlement record data", err)
	}

	return &record, nil
}

func (r *firestoreSettlementRepository) Update(ctx context.Context, record *entity.SettlementRecord) error {
	_, err := r.client.Collection(settlementsCollection).Doc(record.ID).Set(ctx, record)
	if err != nil {
		return errors.Upstream("Failed to update settlement record", err)
	}
	return nil
}

func (r *firestoreSettlementRepository) ListByListing(ctx context.Context, listingID string) ([]*entity.SettlementRecord, error) {
	query := r.client.Collection(settlementsCollection).Query.
		Where("listingId", "==", listingID).
		OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []*entity.SettlementRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Upstream("Failed to iterate settlement records", err)
		}

		var record entity.SettlementRecord
		if err := doc.DataTo(&record); err != nil {
			return nil, errors.Internal("Failed to parse settlement record data", err)
		}
		records = append(records, &record)
	}

	return records, nil
}
