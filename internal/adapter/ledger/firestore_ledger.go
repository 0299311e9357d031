package ledger

import (
	"context"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
)

const (
	walletsCollection = "wallets"
	holdsCollection   = "ledger_holds"

	holdStatusActive   = "active"
	holdStatusReleased = "released"
	holdStatusCaptured = "captured"
)

// amountEpsilon absorbs float rounding when checking that transfer legs
// sum to the held amount.
const amountEpsilon = 1e-6

type wallet struct {
	ID        string    `firestore:"id"`
	Balance   float64   `firestore:"balance"`
	Held      float64   `firestore:"held"`
	Currency  string    `firestore:"currency"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type holdDoc struct {
	ID        string    `firestore:"id"`
	Account   string    `firestore:"account"`
	Amount    float64   `firestore:"amount"`
	Currency  string    `firestore:"currency"`
	Status    string    `firestore:"status"`
	TxID      string    `firestore:"txId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// firestoreLedger is the wallet-backed ledger client. Every operation runs
// in a Firestore transaction, which gives the per-account atomicity the
// engine assumes. Holds carry their resulting tx id, which is what makes
// Transfer idempotent per hold.
type firestoreLedger struct {
	client *firestore.Client
}

func NewFirestoreLedger(client *firestore.Client) service.LedgerClient {
	return &firestoreLedger{
		client: client,
	}
}

func (l *firestoreLedger) CheckBalance(ctx context.Context, account string, amount float64, currency string) (bool, error) {
	doc, err := l.client.Collection(walletsCollection).Doc(account).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, errors.Upstream("Failed to read wallet", err)
	}

	var w wallet
	if err := doc.DataTo(&w); err != nil {
		return false, errors.Internal("Failed to parse wallet data", err)
	}

	return w.Balance-w.Held >= amount, nil
}

func (l *firestoreLedger) Hold(ctx context.Context, holdID, account string, amount float64, currency string) error {
	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		holdRef := l.client.Collection(holdsCollection).Doc(holdID)
		existing, err := tx.Get(holdRef)
		if err == nil {
			var hold holdDoc
			if err := existing.DataTo(&hold); err != nil {
				return err
			}
			if hold.Status == holdStatusActive {
				// A retry of the same hold; the funds are already reserved.
				return nil
			}
			return errors.Conflict("Hold id was already resolved", nil)
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		walletRef := l.client.Collection(walletsCollection).Doc(account)
		doc, err := tx.Get(walletRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.InsufficientFunds("Account has no wallet", err)
			}
			return err
		}

		var w wallet
		if err := doc.DataTo(&w); err != nil {
			return err
		}
		if w.Balance-w.Held < amount {
			return errors.InsufficientFunds("Available balance does not cover the hold", nil)
		}

		now := time.Now()
		w.Held += amount
		w.UpdatedAt = now
		if err := tx.Set(walletRef, &w); err != nil {
			return err
		}

		hold := holdDoc{
			ID:        holdID,
			Account:   account,
			Amount:    amount,
			Currency:  currency,
			Status:    holdStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(l.client.Collection(holdsCollection).Doc(holdID), &hold)
	})

	if err != nil {
		if errors.Is(err, "INSUFFICIENT_FUNDS") || errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Upstream("Failed to place hold", err)
	}

	return nil
}

func (l *firestoreLedger) Release(ctx context.Context, holdID string) error {
	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		holdRef := l.client.Collection(holdsCollection).Doc(holdID)
		doc, err := tx.Get(holdRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Ledger hold", err)
			}
			return err
		}

		var hold holdDoc
		if err := doc.DataTo(&hold); err != nil {
			return err
		}
		if hold.Status == holdStatusReleased {
			// Releasing twice is a no-op.
			return nil
		}
		if hold.Status == holdStatusCaptured {
			return errors.Conflict("Hold was already converted to a transfer", nil)
		}

		walletRef := l.client.Collection(walletsCollection).Doc(hold.Account)
		walletSnap, err := tx.Get(walletRef)
		if err != nil {
			return err
		}
		var w wallet
		if err := walletSnap.DataTo(&w); err != nil {
			return err
		}

		now := time.Now()
		w.Held -= hold.Amount
		w.UpdatedAt = now
		if err := tx.Set(walletRef, &w); err != nil {
			return err
		}

		hold.Status = holdStatusReleased
		hold.UpdatedAt = now
		return tx.Set(holdRef, &hold)
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") || errors.Is(err, "NOT_FOUND") {
			return err
		}
		return errors.Upstream("Failed to release hold", err)
	}

	return nil
}

func (l *firestoreLedger) Transfer(ctx context.Context, holdID string, legs []service.TransferLeg) (string, error) {
	var txID string

	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		holdRef := l.client.Collection(holdsCollection).Doc(holdID)
		doc, err := tx.Get(holdRef)
		if err != nil {
			return err
		}

		var hold holdDoc
		if err := doc.DataTo(&hold); err != nil {
			return err
		}
		if hold.Status == holdStatusCaptured {
			// Already converted; hand back the original tx id.
			txID = hold.TxID
			return nil
		}
		if hold.Status == holdStatusReleased {
			return errors.Conflict("Hold was already released", nil)
		}

		sum := 0.0
		for _, leg := range legs {
			if leg.Amount < 0 {
				return errors.BadRequest("Transfer legs must not be negative", nil)
			}
			sum += leg.Amount
		}
		if math.Abs(sum-hold.Amount) > amountEpsilon {
			return errors.BadRequest("Transfer legs must sum to the held amount", nil)
		}

		// Reads before writes: load the source and every recipient
		// wallet first.
		sourceRef := l.client.Collection(walletsCollection).Doc(hold.Account)
		sourceSnap, err := tx.Get(sourceRef)
		if err != nil {
			return err
		}
		var source wallet
		if err := sourceSnap.DataTo(&source); err != nil {
			return err
		}

		type legWallet struct {
			ref *firestore.DocumentRef
			w   wallet
		}
		recipients := make([]legWallet, len(legs))
		for i, leg := range legs {
			ref := l.client.Collection(walletsCollection).Doc(leg.Account)
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
				recipients[i] = legWallet{ref: ref, w: wallet{ID: leg.Account, Currency: hold.Currency}}
				continue
			}
			var w wallet
			if err := snap.DataTo(&w); err != nil {
				return err
			}
			recipients[i] = legWallet{ref: ref, w: w}
		}

		now := time.Now()
		source.Balance -= hold.Amount
		source.Held -= hold.Amount
		source.UpdatedAt = now
		if err := tx.Set(sourceRef, &source); err != nil {
			return err
		}

		for i, leg := range legs {
			recipients[i].w.Balance += leg.Amount
			recipients[i].w.UpdatedAt = now
			if err := tx.Set(recipients[i].ref, &recipients[i].w); err != nil {
				return err
			}
		}

		txID = uuid.New().String()
		hold.Status = holdStatusCaptured
		hold.TxID = txID
		hold.UpdatedAt = now
		return tx.Set(holdRef, &hold)
	})

	if err != nil {
		if errors.Is(err, "CONFLICT") || errors.Is(err, "VALIDATION_ERROR") {
			return "", err
		}
		return "", errors.Upstream("Failed to transfer hold", err)
	}

	return txID, nil
}
