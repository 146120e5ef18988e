package dao

import (
	"context"
	"sort"
	"sync"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryOrderStore is a mutex-guarded map-backed order store. It mirrors the
// mongo DAO contract, including the conditional escrow update, and backs the
// service tests.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]models.BuyerOrder
}

// NewMemoryOrderStore ...
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]models.BuyerOrder)}
}

// Insert ...
func (s *MemoryOrderStore) Insert(ctx context.Context, order models.BuyerOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID.Hex()] = order
	return nil
}

// FindByID ...
func (s *MemoryOrderStore) FindByID(ctx context.Context, id string) (models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return models.BuyerOrder{}, mongo.ErrNoDocuments
	}
	return order, nil
}

// FindByCheckoutSession ...
func (s *MemoryOrderStore) FindByCheckoutSession(ctx context.Context, sessionID string) (models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.CheckoutSessionID == sessionID {
			return order, nil
		}
	}
	return models.BuyerOrder{}, mongo.ErrNoDocuments
}

// NumberExists ...
func (s *MemoryOrderStore) NumberExists(ctx context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

// Update ...
func (s *MemoryOrderStore) Update(ctx context.Context, order models.BuyerOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID.Hex()]; !ok {
		return mongo.ErrNoDocuments
	}
	s.orders[order.ID.Hex()] = order
	return nil
}

// UpdateIfEscrowStatus applies the update only while the stored escrow
// status still equals expected. The compare and the write happen under one
// lock, matching the atomicity of the mongo findOneAndUpdate.
func (s *MemoryOrderStore) UpdateIfEscrowStatus(ctx context.Context, order models.BuyerOrder, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[order.ID.Hex()]
	if !ok {
		return false, mongo.ErrNoDocuments
	}
	if current.EscrowStatus != expected {
		return false, nil
	}
	s.orders[order.ID.Hex()] = order
	return true, nil
}

// FindEligibleForRelease returns funded, deposit-paid, active orders oldest
// funded first.
func (s *MemoryOrderStore) FindEligibleForRelease(ctx context.Context, limit int) ([]models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var eligible []models.BuyerOrder
	for _, order := range s.orders {
		if order.EscrowStatus == models.EscrowFunded &&
			order.PaymentStatus == models.PaymentDepositPaid &&
			order.Status == models.OrderActive {
			eligible = append(eligible, order)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return fundedAt(eligible[i]).Before(fundedAt(eligible[j]))
	})
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// HasActiveOrderForBatch ...
func (s *MemoryOrderStore) HasActiveOrderForBatch(ctx context.Context, batchID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.Batch == batchID && order.Status == models.OrderActive {
			return true, nil
		}
	}
	return false, nil
}

// ListByBuyer ...
func (s *MemoryOrderStore) ListByBuyer(ctx context.Context, buyerID primitive.ObjectID, status string) ([]models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.BuyerOrder
	for _, order := range s.orders {
		if order.Buyer != buyerID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListAll ...
func (s *MemoryOrderStore) ListAll(ctx context.Context) ([]models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.BuyerOrder, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListAwaitingPaymentBefore ...
func (s *MemoryOrderStore) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.BuyerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.BuyerOrder
	for _, order := range s.orders {
		if order.EscrowStatus == models.EscrowAwaitingPayment &&
			order.Status == models.OrderActive &&
			order.CreatedAt.Before(cutoff) {
			result = append(result, order)
		}
	}
	return result, nil
}

func fundedAt(order models.BuyerOrder) time.Time {
	if order.EscrowFundedAt != nil {
		return *order.EscrowFundedAt
	}
	return order.CreatedAt
}

// MemoryBatchStore is the map-backed batch store
type MemoryBatchStore struct {
	mu      sync.Mutex
	batches map[string]models.Batch
}

// NewMemoryBatchStore ...
func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{batches: make(map[string]models.Batch)}
}

// Put ...
func (s *MemoryBatchStore) Put(batch models.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID.Hex()] = batch
}

// FindByID ...
func (s *MemoryBatchStore) FindByID(ctx context.Context, id string) (models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return models.Batch{}, mongo.ErrNoDocuments
	}
	return batch, nil
}

// Update ...
func (s *MemoryBatchStore) Update(ctx context.Context, batch models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID.Hex()]; !ok {
		return mongo.ErrNoDocuments
	}
	s.batches[batch.ID.Hex()] = batch
	return nil
}

// ListAll ...
func (s *MemoryBatchStore) ListAll(ctx context.Context) ([]models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Batch, 0, len(s.batches))
	for _, batch := range s.batches {
		result = append(result, batch)
	}
	return result, nil
}

// MemoryDisputeStore is the map-backed dispute store. The open-uniqueness
// check and the insert share one lock, like the partial unique index on the
// mongo collection.
type MemoryDisputeStore struct {
	mu       sync.Mutex
	disputes map[string]models.Dispute
}

// NewMemoryDisputeStore ...
func NewMemoryDisputeStore() *MemoryDisputeStore {
	return &MemoryDisputeStore{disputes: make(map[string]models.Dispute)}
}

// InsertIfNoOpen ...
func (s *MemoryDisputeStore) InsertIfNoOpen(ctx context.Context, dispute models.Dispute) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.disputes {
		if existing.Order == dispute.Order &&
			existing.AnomalyType == dispute.AnomalyType &&
			existing.Issue == dispute.Issue &&
			existing.Open() {
			return false, nil
		}
	}
	s.disputes[dispute.ID.Hex()] = dispute
	return true, nil
}

// FindByID ...
func (s *MemoryDisputeStore) FindByID(ctx context.Context, id string) (models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dispute, ok := s.disputes[id]
	if !ok {
		return models.Dispute{}, mongo.ErrNoDocuments
	}
	return dispute, nil
}

// FindOpenByOrderKey ...
func (s *MemoryDisputeStore) FindOpenByOrderKey(ctx context.Context, orderID primitive.ObjectID, anomalyType, issue string) (models.Dispute, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dispute := range s.disputes {
		if dispute.Order == orderID && dispute.AnomalyType == anomalyType &&
			dispute.Issue == issue && dispute.Open() {
			return dispute, true, nil
		}
	}
	return models.Dispute{}, false, nil
}

// Update ...
func (s *MemoryDisputeStore) Update(ctx context.Context, dispute models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[dispute.ID.Hex()]; !ok {
		return mongo.ErrNoDocuments
	}
	s.disputes[dispute.ID.Hex()] = dispute
	return nil
}

// ListByOrder ...
func (s *MemoryDisputeStore) ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Dispute
	for _, dispute := range s.disputes {
		if dispute.Order == orderID {
			result = append(result, dispute)
		}
	}
	return result, nil
}

// ListByHub ...
func (s *MemoryDisputeStore) ListByHub(ctx context.Context, hubID string) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Dispute
	for _, dispute := range s.disputes {
		if dispute.HubID == hubID {
			result = append(result, dispute)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActionAt.After(result[j].LastActionAt)
	})
	return result, nil
}

// ListAll ...
func (s *MemoryDisputeStore) ListAll(ctx context.Context) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Dispute, 0, len(s.disputes))
	for _, dispute := range s.disputes {
		result = append(result, dispute)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActionAt.After(result[j].LastActionAt)
	})
	return result, nil
}

// MemoryPayoutAuditStore is the append-only map-backed audit store
type MemoryPayoutAuditStore struct {
	mu     sync.Mutex
	audits []models.PayoutAudit
}

// NewMemoryPayoutAuditStore ...
func NewMemoryPayoutAuditStore() *MemoryPayoutAuditStore {
	return &MemoryPayoutAuditStore{}
}

// Insert ...
func (s *MemoryPayoutAuditStore) Insert(ctx context.Context, audit models.PayoutAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, audit)
	return nil
}

// CountByOrder ...
func (s *MemoryPayoutAuditStore) CountByOrder(ctx context.Context, orderID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, audit := range s.audits {
		if audit.Order == orderID {
			n++
		}
	}
	return n, nil
}

// ListByOrder ...
func (s *MemoryPayoutAuditStore) ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.PayoutAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.PayoutAudit
	for _, audit := range s.audits {
		if audit.Order == orderID {
			result = append(result, audit)
		}
	}
	return result, nil
}

// ListAll ...
func (s *MemoryPayoutAuditStore) ListAll(ctx context.Context) ([]models.PayoutAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.PayoutAudit, len(s.audits))
	copy(result, s.audits)
	return result, nil
}

// MemoryUserStore is the map-backed user store
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

// NewMemoryUserStore ...
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

// Put ...
func (s *MemoryUserStore) Put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID.Hex()] = user
}

// FindByID ...
func (s *MemoryUserStore) FindByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return user, nil
}
