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

const escrowHoldsCollection = "escrow_holds"

type firestoreEscrowRepository struct {
	client *firestore.Client
}

func NewFirestoreEscrowRepository(client *firestore.Client) repository.EscrowRepository {
	return &firestoreEscrowRepository{
		client: client,
	}
}

func (r *firestoreEscrowRepository) Create(ctx context.Context, hold *entity.EscrowHold) error {
	_, err := r.client.Collection(escrowHoldsCollection).Doc(hold.ID).Create(ctx, hold)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Escrow hold already exists", err)
		}
		return errors.Upstream("Failed to create escrow hold", err)
	}
	return nil
}

func (r *firestoreEscrowRepository) GetByID(ctx context.Context, id string) (*entity.EscrowHold, error) {
	doc, err := r.client.Collection(escrowHoldsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Escrow hold", err)
		}
		return nil, errors.Upstream("Failed to get escrow hold", err)
	}

	var hold entity.EscrowHold
	if err := doc.DataTo(&hold); err != nil {
		return nil, errors.Internal("Failed to parse escrow hold data", err)
	}

	return &hold, nil
}

func (r *firestoreEscrowRepository) ListOpenByListing(ctx context.Context, listingID string) ([]*entity.EscrowHold, error) {
	query := r.client.Collection(escrowHoldsCollection).Query.
		Where("listingId", "==", listingID).
		Where("status", "in", []string{
			string(entity.EscrowHoldPending),
			string(entity.EscrowHoldActive),
		})

	iter := query.Documents(ctx)
	defer iter.Stop()

	var holds []*entity.EscrowHold
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Upstream("Failed to iterate escrow holds", err)
		}

		var hold entity.EscrowHold
		if err := doc.DataTo(&hold); err != nil {
			return nil, errors.Internal("Failed to parse escrow hold data", err)
		}
		holds = append(holds, &hold)
	}

	return holds, nil
}

func (r *firestoreEscrowRepository) Update(ctx context.Context, hold *entity.EscrowHold) error {
	_, err := r.client.Collection(escrowHoldsCollection).Doc(hold.ID).Set(ctx, hold)
	if err != nil {
		return errors.Upstream("Failed to update escrow hold", err)
	}
	return nil
}
