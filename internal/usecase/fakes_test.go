package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
)

// The fakes below mirror the durability semantics of the real adapters:
// reads hand back copies, writes persist copies, and the status guards on
// UpdateActive and Transition behave like the store-side compare-and-set.

func cloneListing(l *entity.Listing) *entity.Listing {
	data, _ := json.Marshal(l)
	var out entity.Listing
	json.Unmarshal(data, &out)
	return &out
}

type fakeListingRepo struct {
	mu       sync.Mutex
	listings map[string]*entity.Listing
	index    map[string]string

	// failUpdateActive counts down injected UpdateActive failures.
	failUpdateActive int
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{
		listings: make(map[string]*entity.Listing),
		index:    make(map[string]string),
	}
}

func (r *fakeListingRepo) Create(ctx context.Context, listing *entity.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, itemID := range listing.Items() {
		if _, taken := r.index[itemID]; taken {
			return errors.Conflict("Item already has an active listing", nil)
		}
	}
	r.listings[listing.ID] = cloneListing(listing)
	for _, itemID := range listing.Items() {
		r.index[itemID] = listing.ID
	}
	return nil
}

func (r *fakeListingRepo) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.listings[id]
	if !ok {
		return nil, errors.NotFound("Listing", nil)
	}
	return cloneListing(stored), nil
}

func (r *fakeListingRepo) UpdateActive(ctx context.Context, listing *entity.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpdateActive > 0 {
		r.failUpdateActive--
		return errors.Upstream("store unavailable", nil)
	}

	stored, ok := r.listings[listing.ID]
	if !ok {
		return errors.NotFound("Listing", nil)
	}
	if stored.Status != entity.ListingStatusActive {
		return errors.Conflict("Listing is no longer active", nil)
	}
	r.listings[listing.ID] = cloneListing(listing)
	return nil
}

func (r *fakeListingRepo) Transition(ctx context.Context, listing *entity.Listing, from, to entity.ListingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.listings[listing.ID]
	if !ok {
		return errors.NotFound("Listing", nil)
	}
	if stored.Status != from {
		return errors.Conflict("Listing status changed concurrently", nil)
	}

	updated := cloneListing(listing)
	updated.Status = to
	r.listings[listing.ID] = updated

	if to.IsTerminal() {
		for _, itemID := range listing.Items() {
			delete(r.index, itemID)
		}
	}
	return nil
}

func (r *fakeListingRepo) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Listing, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*entity.Listing
	for _, stored := range r.listings {
		if kind, ok := filter["kind"]; ok && string(stored.Kind) != kind {
			continue
		}
		if status, ok := filter["status"]; ok && string(stored.Status) != status {
			continue
		}
		if sellerID, ok := filter["sellerId"]; ok && stored.SellerID != sellerID {
			continue
		}
		matched = append(matched, cloneListing(stored))
	}

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *fakeListingRepo) ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*entity.Listing
	for _, stored := range r.listings {
		if stored.Kind != entity.ListingKindAuction || stored.Status != entity.ListingStatusActive {
			continue
		}
		if stored.Auction != nil && !stored.Auction.EndTime.After(now) {
			due = append(due, cloneListing(stored))
		}
	}
	return due, nil
}

func (r *fakeListingRepo) ListFinalizing(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stuck []*entity.Listing
	for _, stored := range r.listings {
		if stored.Status == entity.ListingStatusFinalizing && !stored.UpdatedAt.After(olderThan) {
			stuck = append(stuck, cloneListing(stored))
		}
	}
	return stuck, nil
}

func (r *fakeListingRepo) ListRentalsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*entity.Listing
	for _, stored := range r.listings {
		if stored.Kind != entity.ListingKindRental || stored.Status != entity.ListingStatusActive {
			continue
		}
		if stored.Rental != nil && stored.Rental.NextExpiry != nil && !stored.Rental.NextExpiry.After(now) {
			due = append(due, cloneListing(stored))
		}
	}
	return due, nil
}

// mutate edits the stored listing directly, bypassing the CAS. Tests use it
// to simulate elapsed time or the state a crash leaves behind.
func (r *fakeListingRepo) mutate(id string, fn func(*entity.Listing)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.listings[id])
}

type fakeEscrowRepo struct {
	mu    sync.Mutex
	holds map[string]*entity.EscrowHold
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{holds: make(map[string]*entity.EscrowHold)}
}

func (r *fakeEscrowRepo) Create(ctx context.Context, hold *entity.EscrowHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holds[hold.ID]; exists {
		return errors.Conflict("Escrow hold already exists", nil)
	}
	copied := *hold
	r.holds[hold.ID] = &copied
	return nil
}

func (r *fakeEscrowRepo) GetByID(ctx context.Context, id string) (*entity.EscrowHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.holds[id]
	if !ok {
		return nil, errors.NotFound("Escrow hold", nil)
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeEscrowRepo) ListOpenByListing(ctx context.Context, listingID string) ([]*entity.EscrowHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open []*entity.EscrowHold
	for _, stored := range r.holds {
		if stored.ListingID != listingID {
			continue
		}
		if stored.Status == entity.EscrowHoldActive || stored.Status == entity.EscrowHoldPending {
			copied := *stored
			open = append(open, &copied)
		}
	}
	return open, nil
}

func (r *fakeEscrowRepo) Update(ctx context.Context, hold *entity.EscrowHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *hold
	r.holds[hold.ID] = &copied
	return nil
}

func (r *fakeEscrowRepo) activeCount(listingID string) int {
	holds, _ := r.ListOpenByListing(context.Background(), listingID)
	return len(holds)
}

type fakeSettlementRepo struct {
	mu      sync.Mutex
	records map[string]*entity.SettlementRecord
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{records: make(map[string]*entity.SettlementRecord)}
}

func (r *fakeSettlementRepo) Create(ctx context.Context, record *entity.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return errors.Conflict("Settlement record already exists", nil)
	}
	copied := *record
	copied.ItemsTransferred = append([]string(nil), record.ItemsTransferred...)
	r.records[record.ID] = &copied
	return nil
}

func (r *fakeSettlementRepo) GetByID(ctx context.Context, id string) (*entity.SettlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[id]
	if !ok {
		return nil, errors.NotFound("Settlement record", nil)
	}
	copied := *stored
	copied.ItemsTransferred = append([]string(nil), stored.ItemsTransferred...)
	return &copied, nil
}

func (r *fakeSettlementRepo) Update(ctx context.Context, record *entity.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	copied.ItemsTransferred = append([]string(nil), record.ItemsTransferred...)
	r.records[record.ID] = &copied
	return nil
}

func (r *fakeSettlementRepo) ListByListing(ctx context.Context, listingID string) ([]*entity.SettlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*entity.SettlementRecord
	for _, stored := range r.records {
		if stored.ListingID == listingID {
			copied := *stored
			matched = append(matched, &copied)
		}
	}
	return matched, nil
}

func (r *fakeSettlementRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeHold struct {
	account string
	amount  float64
	status  string
	txID    string
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]float64
	held     map[string]float64
	holds    map[string]*fakeHold
	nextID   int

	failHold     bool
	failTransfer bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]float64),
		held:     make(map[string]float64),
		holds:    make(map[string]*fakeHold),
	}
}

func (l *fakeLedger) fund(account string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

func (l *fakeLedger) balance(account string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *fakeLedger) heldAmount(account string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[account]
}

func (l *fakeLedger) CheckBalance(ctx context.Context, account string, amount float64, currency string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]-l.held[account] >= amount, nil
}

func (l *fakeLedger) Hold(ctx context.Context, holdID, account string, amount float64, currency string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failHold {
		return errors.Upstream("ledger unavailable", nil)
	}
	if hold, ok := l.holds[holdID]; ok {
		if hold.status == "active" {
			return nil
		}
		return errors.Conflict("Hold id was already resolved", nil)
	}
	if l.balances[account]-l.held[account] < amount {
		return errors.InsufficientFunds("Available balance does not cover the hold", nil)
	}

	l.held[account] += amount
	l.holds[holdID] = &fakeHold{account: account, amount: amount, status: "active"}
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, holdID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[holdID]
	if !ok {
		return errors.NotFound("Ledger hold", nil)
	}
	if hold.status == "released" {
		return nil
	}
	if hold.status == "captured" {
		return errors.Conflict("Hold was already converted to a transfer", nil)
	}

	l.held[hold.account] -= hold.amount
	hold.status = "released"
	return nil
}

func (l *fakeLedger) Transfer(ctx context.Context, holdID string, legs []service.TransferLeg) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[holdID]
	if !ok {
		return "", errors.NotFound("Ledger hold", nil)
	}
	if hold.status == "captured" {
		return hold.txID, nil
	}
	if hold.status == "released" {
		return "", errors.Conflict("Hold was already released", nil)
	}
	if l.failTransfer {
		return "", errors.Upstream("ledger unavailable", nil)
	}

	sum := 0.0
	for _, leg := range legs {
		sum += leg.Amount
	}
	if diff := sum - hold.amount; diff > 1e-6 || diff < -1e-6 {
		return "", errors.BadRequest("Transfer legs must sum to the held amount", nil)
	}

	l.balances[hold.account] -= hold.amount
	l.held[hold.account] -= hold.amount
	for _, leg := range legs {
		l.balances[leg.Account] += leg.Amount
	}

	l.nextID++
	hold.status = "captured"
	hold.txID = fmt.Sprintf("tx-%d", l.nextID)
	return hold.txID, nil
}

type fakeRegistry struct {
	mu     sync.Mutex
	owners map[string]string
	grants map[string]map[string]time.Time

	// failTransfers counts down injected TransferOwnership failures per
	// item id.
	failTransfers map[string]int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		owners:        make(map[string]string),
		grants:        make(map[string]map[string]time.Time),
		failTransfers: make(map[string]int),
	}
}

func (r *fakeRegistry) setOwner(itemID, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[itemID] = ownerID
}

func (r *fakeRegistry) OwnerOf(ctx context.Context, itemID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[itemID]
	if !ok {
		return "", errors.NotFound("Item", nil)
	}
	return owner, nil
}

func (r *fakeRegistry) TransferOwnership(ctx context.Context, itemID, fromOwner, toOwner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failTransfers[itemID] > 0 {
		r.failTransfers[itemID]--
		return errors.Upstream("registry unavailable", nil)
	}

	owner := r.owners[itemID]
	if owner == toOwner {
		return nil
	}
	if owner != fromOwner {
		return errors.Conflict("Item is not owned by the expected seller", nil)
	}
	r.owners[itemID] = toOwner
	return nil
}

func (r *fakeRegistry) GrantTemporaryUse(ctx context.Context, itemID, userID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.grants[itemID] == nil {
		r.grants[itemID] = make(map[string]time.Time)
	}
	r.grants[itemID][userID] = until
	return nil
}

func (r *fakeRegistry) RevokeTemporaryUse(ctx context.Context, itemID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.grants[itemID], userID)
	return nil
}

func (r *fakeRegistry) hasGrant(itemID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[itemID][userID]
	return ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []service.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event service.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, len(p.events))
	for i, event := range p.events {
		types[i] = event.Type
	}
	return types
}

// fixture wires a marketplace over the in-memory fakes.
type fixture struct {
	listings    *fakeListingRepo
	escrow      *fakeEscrowRepo
	settlements *fakeSettlementRepo
	ledger      *fakeLedger
	registry    *fakeRegistry
	publisher   *fakePublisher
	mkt         *Marketplace
}

func newFixture() *fixture {
	f := &fixture{
		listings:    newFakeListingRepo(),
		escrow:      newFakeEscrowRepo(),
		settlements: newFakeSettlementRepo(),
		ledger:      newFakeLedger(),
		registry:    newFakeRegistry(),
		publisher:   &fakePublisher{},
	}
	f.mkt = NewMarketplace(
		f.listings,
		f.escrow,
		f.settlements,
		f.ledger,
		f.registry,
		f.publisher,
		NewFeeCalculator(DefaultFeeRates()),
	)
	return f
}
