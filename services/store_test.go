package services_test

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/repositories"
)

// memoryStore is an in-memory stand-in for the Mongo repositories. It
// implements services.UserStore, services.OrderStore,
// services.CommissionStore and services.TxnRunner.
type memoryStore struct {
	mu          sync.Mutex
	users       map[primitive.ObjectID]*models.User
	usersByCode map[string]primitive.ObjectID
	orders      map[primitive.ObjectID]*models.Order
	commissions []*models.Commission
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[primitive.ObjectID]*models.User),
		usersByCode: make(map[string]primitive.ObjectID),
		orders:      make(map[primitive.ObjectID]*models.Order),
	}
}

// addUser registers a user with the given referral code and upline code and
// returns its id. Pass "" for either to leave it unset.
func (m *memoryStore) addUser(code, referredBy string) primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := primitive.NewObjectID()
	m.users[id] = &models.User{
		ID:             id,
		ReferralCode:   code,
		ReferredByCode: referredBy,
		IsActive:       true,
	}
	if code != "" {
		m.usersByCode[code] = id
	}
	return id
}

func (m *memoryStore) removeUser(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[id]; ok {
		delete(m.usersByCode, user.ReferralCode)
		delete(m.users, id)
	}
}

func (m *memoryStore) user(id primitive.ObjectID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memoryStore) addOrder(sellerID primitive.ObjectID, status models.OrderStatus, price float64) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := &models.Order{
		ID:          primitive.NewObjectID(),
		OrderNumber: fmt.Sprintf("ord-%d", len(m.orders)+1),
		SellerID:    sellerID,
		OrderStatus: status,
		Items: []models.OrderItem{
			{ProductID: primitive.NewObjectID(), Name: "product", Price: price, Quantity: 1},
		},
	}
	m.orders[order.ID] = order
	return order
}

func (m *memoryStore) rowsForOrder(orderID primitive.ObjectID) []models.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []models.Commission
	for _, row := range m.commissions {
		if row.OrderID == orderID {
			rows = append(rows, *row)
		}
	}
	return rows
}

func (m *memoryStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memoryStore) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usersByCode[code]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

func (m *memoryStore) ApplyBalanceDelta(ctx context.Context, userID primitive.ObjectID, delta repositories.BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.PendingCommission = clamp(user.PendingCommission + delta.Pending)
	user.AvailableCommission = clamp(user.AvailableCommission + delta.Available)
	user.DirectCommissionEarned += delta.DirectEarned
	user.ReferralCommissionEarned += delta.ReferralEarned
	user.TotalEarnings += delta.TotalEarnings
	return nil
}

func (m *memoryStore) IncrementTotalSales(ctx context.Context, userID primitive.ObjectID, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.TotalSales += amount
	return nil
}

func (m *memoryStore) CountQualifyingSales(ctx context.Context, sellerID, excludeOrderID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, order := range m.orders {
		if order.SellerID != sellerID || order.ID == excludeOrderID {
			continue
		}
		switch order.OrderStatus {
		case models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered:
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) InsertMany(ctx context.Context, rows []models.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range rows {
		copied := rows[i]
		m.commissions = append(m.commissions, &copied)
	}
	return nil
}

func (m *memoryStore) FindPendingByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []models.Commission
	for _, row := range m.commissions {
		if row.OrderID == orderID && row.Status == models.CommissionStatusPending {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (m *memoryStore) Transition(ctx context.Context, id primitive.ObjectID, next models.CommissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.commissions {
		if row.ID != id {
			continue
		}
		if !row.Status.CanTransitionTo(next) {
			return repositories.ErrInvalidTransition
		}
		row.Status = next
		return nil
	}
	return repositories.ErrInvalidTransition
}

func (m *memoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
