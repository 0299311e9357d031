package registry

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
)

const itemsCollection = "items"

type useGrant struct {
	UserID string    `firestore:"userId"`
	Until  time.Time `firestore:"until"`
}

type itemDoc struct {
	ID        string     `firestore:"id"`
	OwnerID   string     `firestore:"ownerId"`
	Grants    []useGrant `firestore:"grants"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

// firestoreRegistry is the ownership registry of record: item owner plus
// temporary-use grants from rentals.
type firestoreRegistry struct {
	client *firestore.Client
}

func NewFirestoreRegistry(client *firestore.Client) service.OwnershipRegistry {
	return &firestoreRegistry{
		client: client,
	}
}

func (r *firestoreRegistry) OwnerOf(ctx context.Context, itemID string) (string, error) {
	doc, err := r.client.Collection(itemsCollection).Doc(itemID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", errors.NotFound("Item", err)
		}
		return "", errors.Upstream("Failed to read item", err)
	}

	var item itemDoc
	if err := doc.DataTo(&item); err != nil {
		return "", errors.Internal("Failed to parse item data", err)
	}

	return item.OwnerID, nil
}

func (r *firestoreRegistry) TransferOwnership(ctx context.Context, itemID, fromOwner, toOwner string) error {
	ref := r.client.Collection(itemsCollection).Doc(itemID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var item itemDoc
		if err := doc.DataTo(&item); err != nil {
			return err
		}
		if item.OwnerID == toOwner {
			// Already transferred; a settlement retry lands here.
			return nil
		}
		if item.OwnerID != fromOwner {
			return errors.Conflict("Item is not owned by the expected seller", nil)
		}

		item.OwnerID = toOwner
		item.UpdatedAt = time.Now()
		return tx.Set(ref, &item)
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Upstream("Failed to transfer item ownership", err)
	}

	return nil
}

func (r *firestoreRegistry) GrantTemporaryUse(ctx context.Context, itemID, userID string, until time.Time) error {
	ref := r.client.Collection(itemsCollection).Doc(itemID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var item itemDoc
		if err := doc.DataTo(&item); err != nil {
			return err
		}

		replaced := false
		for i := range item.Grants {
			if item.Grants[i].UserID == userID {
				item.Grants[i].Until = until
				replaced = true
				break
			}
		}
		if !replaced {
			item.Grants = append(item.Grants, useGrant{UserID: userID, Until: until})
		}

		item.UpdatedAt = time.Now()
		return tx.Set(ref, &item)
	})

	if err != nil {
		return errors.Upstream("Failed to grant temporary use", err)
	}
	return nil
}

func (r *firestoreRegistry) RevokeTemporaryUse(ctx context.Context, itemID, userID string) error {
	ref := r.client.Collection(itemsCollection).Doc(itemID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var item itemDoc
		if err := doc.DataTo(&item); err != nil {
			return err
		}

		grants := item.Grants[:0]
		for _, grant := range item.Grants {
			if grant.UserID != userID {
				grants = append(grants, grant)
			}
		}
		item.Grants = grants
		item.UpdatedAt = time.Now()
		return tx.Set(ref, &item)
	})

	if err != nil {
		return errors.Upstream("Failed to revoke temporary use", err)
	}
	return nil
}
