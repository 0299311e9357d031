package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
)

const (
	listingsCollection = "listings"
	// listingItems is the secondary index by item id: one document per
	// item with an ACTIVE listing, which is what enforces "one active
	// listing per item".
	listingItemsCollection = "listing_items"
)

type listingItemEntry struct {
	ItemID    string `firestore:"itemId"`
	ListingID string `firestore:"listingId"`
}

type firestoreListingRepository struct {
	client *firestore.Client
}

func NewFirestoreListingRepository(client *firestore.Client) repository.ListingRepository {
	return &firestoreListingRepository{
		client: client,
	}
}

func (r *firestoreListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// All reads must come before writes in a Firestore transaction.
		for _, itemID := range listing.Items() {
			_, err := tx.Get(r.client.Collection(listingItemsCollection).Doc(itemID))
			if err == nil {
				return errors.Conflict("Item already has an active listing", nil)
			}
			if status.Code(err) != codes.NotFound {
				return err
			}
		}

		if err := tx.Create(r.client.Collection(listingsCollection).Doc(listing.ID), listing); err != nil {
			return err
		}
		for _, itemID := range listing.Items() {
			entry := listingItemEntry{ItemID: itemID, ListingID: listing.ID}
			if err := tx.Create(r.client.Collection(listingItemsCollection).Doc(itemID), entry); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Upstream("Failed to create listing", err)
	}

	return nil
}

func (r *firestoreListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	doc, err := r.client.Collection(listingsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Listing", err)
		}
		return nil, errors.Upstream("Failed to get listing", err)
	}

	var listing entity.Listing
	if err := doc.DataTo(&listing); err != nil {
		return nil, errors.Internal("Failed to parse listing data", err)
	}

	return &listing, nil
}

func (r *firestoreListingRepository) UpdateActive(ctx context.Context, listing *entity.Listing) error {
	ref := r.client.Collection(listingsCollection).Doc(listing.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var stored entity.Listing
		if err := doc.DataTo(&stored); err != nil {
			return err
		}
		if stored.Status != entity.ListingStatusActive {
			return errors.Conflict("Listing is no longer active", nil)
		}

		return tx.Set(ref, listing)
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Upstream("Failed to update listing", err)
	}

	return nil
}

func (r *firestoreListingRepository) Transition(ctx context.Context, listing *entity.Listing, from, to entity.ListingStatus) error {
	ref := r.client.Collection(listingsCollection).Doc(listing.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var stored entity.Listing
		if err := doc.DataTo(&stored); err != nil {
			return err
		}
		if stored.Status != from {
			return errors.Conflict("Listing status changed concurrently", nil)
		}

		updated := *listing
		updated.Status = to
		if err := tx.Set(ref, &updated); err != nil {
			return err
		}

		// Terminal transitions free the item index entries so the items
		// can be listed again.
		if to.IsTerminal() {
			for _, itemID := range listing.Items() {
				if err := tx.Delete(r.client.Collection(listingItemsCollection).Doc(itemID)); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Upstream("Failed to transition listing status", err)
	}

	return nil
}

func (r *firestoreListingRepository) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Listing, int64, error) {
	query := r.client.Collection(listingsCollection).Query

	for key, value := range filter {
		query = query.Where(key, "==", value)
	}

	query = query.OrderBy("createdAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, errors.Upstream("Failed to count listings", err)
	}
	total := int64(len(allDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var listings []*entity.Listing

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, errors.Upstream("Failed to iterate listings", err)
		}

		var listing entity.Listing
		if err := doc.DataTo(&listing); err != nil {
			return nil, 0, errors.Internal("Failed to parse listing data", err)
		}
		listings = append(listings, &listing)
	}

	return listings, total, nil
}

func (r *firestoreListingRepository) ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error) {
	query := r.client.Collection(listingsCollection).Query.
		Where("kind", "==", string(entity.ListingKindAuction)).
		Where("status", "==", string(entity.ListingStatusActive)).
		Where("auction.endTime", "<=", now).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreListingRepository) ListFinalizing(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Listing, error) {
	query := r.client.Collection(listingsCollection).Query.
		Where("status", "==", string(entity.ListingStatusFinalizing)).
		Where("updatedAt", "<=", olderThan).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreListingRepository) ListRentalsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error) {
	query := r.client.Collection(listingsCollection).Query.
		Where("kind", "==", string(entity.ListingKindRental)).
		Where("status", "==", string(entity.ListingStatusActive)).
		Where("rental.nextExpiry", "<=", now).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreListingRepository) collect(ctx context.Context, query firestore.Query) ([]*entity.Listing, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var listings []*entity.Listing
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Upstream("Failed to iterate listings", err)
		}

		var listing entity.Listing
		if err := doc.DataTo(&listing); err != nil {
			return nil, errors.Internal("Failed to parse listing data", err)
		}
		listings = append(listings, &listing)
	}

	return listings, nil
}
