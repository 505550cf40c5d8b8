package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/services"
)

func newTestEngine() (*services.CommissionService, *memoryStore) {
	store := newMemoryStore()
	engine := services.NewCommissionService(store, store, store, store)
	return engine, store
}

// buildChain creates a seller referred through the given upline codes:
// the returned slice is [seller, direct referrer, ...], i.e. seller first,
// then nearest-upline-first.
func buildChain(store *memoryStore, depth int) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, depth+1)

	// Topmost user has no referrer; everyone below points one up.
	codes := make([]string, depth+1)
	for i := range codes {
		codes[i] = "CODE-" + string(rune('A'+i))
	}
	for i := depth; i >= 0; i-- {
		referredBy := ""
		if i < depth {
			referredBy = codes[i+1]
		}
		id := store.addUser(codes[i], referredBy)
		ids = append([]primitive.ObjectID{id}, ids...)
	}
	return ids
}

func TestResolveChain_Depths(t *testing.T) {
	tests := []struct {
		name      string
		depth     int
		wantLevel int
	}{
		{"no referrer", 0, 0},
		{"single referrer", 1, 1},
		{"two levels", 2, 2},
		{"three levels", 3, 3},
		{"full depth", 4, 4},
		{"capped at four", 6, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store := newTestEngine()
			ids := buildChain(store, tt.depth)

			level, err := engine.SellerLevel(context.Background(), ids[0])
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestResolveChain_OrderedNearestFirst(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 3)

	seller, err := store.FindByID(context.Background(), ids[0])
	require.NoError(t, err)

	chain, err := engine.ResolveChain(context.Background(), seller)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, ids[1], chain[0].ID, "index 0 is the direct referrer")
	assert.Equal(t, ids[2], chain[1].ID)
	assert.Equal(t, ids[3], chain[2].ID)
}

func TestResolveChain_DanglingCodeEndsChain(t *testing.T) {
	// The middle user points at a code that resolves to nobody. The chain
	// ends there; it is not an error.
	engine, store := newTestEngine()
	referrerID := store.addUser("TOP", "GHOST-CODE")
	sellerID := store.addUser("SELLER", "TOP")

	seller, err := store.FindByID(context.Background(), sellerID)
	require.NoError(t, err)

	chain, err := engine.ResolveChain(context.Background(), seller)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, referrerID, chain[0].ID)
}

func TestCreateAwardsForOrder_DistributionTable(t *testing.T) {
	tests := []struct {
		level           int
		wantPercentages []float64
	}{
		{1, []float64{6}},
		{2, []float64{6, 4}},
		{3, []float64{6, 4, 2}},
		{4, []float64{6, 4, 2, 1}},
	}

	for _, tt := range tests {
		engine, store := newTestEngine()
		ids := buildChain(store, tt.level)

		// A prior delivered order suppresses the first-sale bonus so the
		// base table shows through.
		store.addOrder(ids[0], models.OrderStatusDelivered, 500)

		order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
		result, err := engine.CreateAwardsForOrder(context.Background(), order)
		require.NoError(t, err)

		assert.Equal(t, tt.level, result.SellerLevel)
		assert.False(t, result.FirstSale)
		require.Len(t, result.Commissions, len(tt.wantPercentages))

		for i, want := range tt.wantPercentages {
			row := result.Commissions[i]
			assert.Equal(t, want, row.CommissionPercentage, "level %d, upline index %d", tt.level, i)
			assert.Equal(t, 1000*want/100, row.Amount)
			assert.Equal(t, ids[i+1], row.RecipientID)
			assert.Equal(t, ids[0], row.SellerID)
			assert.Equal(t, order.ID, row.OrderID)
			assert.Equal(t, models.CommissionTypeReferral, row.Type)
			assert.Equal(t, tt.level, row.Level)
			assert.Equal(t, models.CommissionStatusPending, row.Status)
		}
	}
}

func TestCreateAwardsForOrder_FirstSaleBonus(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 2)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, result.FirstSale)
	assert.Equal(t, 10.0, result.DirectPercentage)
	require.Len(t, result.Commissions, 2)
	assert.Equal(t, 100.0, result.Commissions[0].Amount, "direct referrer gets 10% on a first sale")
	assert.Contains(t, result.Commissions[0].Description, "first sale bonus")
	assert.Equal(t, 40.0, result.Commissions[1].Amount, "bonus never reaches deeper levels")
}

func TestCreateAwardsForOrder_CancelledOrdersDoNotCountAsSales(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 1)

	// A cancelled prior order is not a qualifying sale; the bonus applies.
	store.addOrder(ids[0], models.OrderStatusCancelled, 700)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.FirstSale)
	assert.Equal(t, 100.0, result.Commissions[0].Amount)
}

func TestCreateAwardsForOrder_NoChain(t *testing.T) {
	engine, store := newTestEngine()
	sellerID := store.addUser("LONER", "")

	order := store.addOrder(sellerID, models.OrderStatusProcessing, 5000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err, "no commission chain is a success, not an error")

	assert.Equal(t, 0, result.SellerLevel)
	assert.Empty(t, result.Commissions)
	assert.Empty(t, store.rowsForOrder(order.ID))
}

func TestCreateAwardsForOrder_SellerNotFound(t *testing.T) {
	engine, store := newTestEngine()

	order := store.addOrder(primitive.NewObjectID(), models.OrderStatusProcessing, 1000)
	_, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.ErrorIs(t, err, services.ErrSellerNotFound)
	assert.Empty(t, store.rowsForOrder(order.ID), "creation aborts with no partial rows")
}

func TestCreateAwardsForOrder_ReservesPendingBalances(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 3)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	var total float64
	for _, row := range result.Commissions {
		recipient := store.user(row.RecipientID)
		assert.Equal(t, row.Amount, recipient.PendingCommission)
		assert.Zero(t, recipient.AvailableCommission)
		total += row.Amount
	}
	assert.Equal(t, total, result.TotalAmount())
}

func TestScenarioFirstSale(t *testing.T) {
	// Seller S referred by A, A by B, B by C, C unreferred. First sale of
	// 1000: A gets 100 (10%), B 40, C 20 — 160 distributed in total.
	engine, store := newTestEngine()
	ids := buildChain(store, 3)
	s, a, b, c := ids[0], ids[1], ids[2], ids[3]

	level, err := engine.SellerLevel(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 3, level)

	order := store.addOrder(s, models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	require.Len(t, result.Commissions, 3)
	assert.Equal(t, 160.0, result.TotalAmount())
	assert.Equal(t, 100.0, store.user(a).PendingCommission)
	assert.Equal(t, 40.0, store.user(b).PendingCommission)
	assert.Equal(t, 20.0, store.user(c).PendingCommission)
}

func TestScenarioSecondSale(t *testing.T) {
	// Same chain, second sale: the direct referrer drops to the 6% base.
	engine, store := newTestEngine()
	ids := buildChain(store, 3)
	s, a, b, c := ids[0], ids[1], ids[2], ids[3]

	store.addOrder(s, models.OrderStatusDelivered, 1000)

	order := store.addOrder(s, models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	require.Len(t, result.Commissions, 3)
	assert.False(t, result.FirstSale)
	assert.Equal(t, 60.0, store.user(a).PendingCommission)
	assert.Equal(t, 40.0, store.user(b).PendingCommission)
	assert.Equal(t, 20.0, store.user(c).PendingCommission)
}

func TestCreditPendingForOrder(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 2)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	result, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)
	require.Len(t, result.Commissions, 2)

	credited, err := engine.CreditPendingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, credited)

	for _, row := range store.rowsForOrder(order.ID) {
		assert.Equal(t, models.CommissionStatusCredited, row.Status)
		recipient := store.user(row.RecipientID)
		assert.Zero(t, recipient.PendingCommission)
		assert.Equal(t, row.Amount, recipient.AvailableCommission)
		assert.Equal(t, row.Amount, recipient.ReferralCommissionEarned)
		assert.Equal(t, row.Amount, recipient.TotalEarnings)
		assert.Zero(t, recipient.DirectCommissionEarned)
	}

	// Re-marking the order delivered must change nothing.
	credited, err = engine.CreditPendingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Zero(t, credited)

	first := store.user(ids[1])
	assert.Equal(t, 100.0, first.AvailableCommission, "no double crediting")
}

func TestCancelPendingForOrder(t *testing.T) {
	engine, store := newTestEngine()
	ids := buildChain(store, 2)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	_, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	cancelled, err := engine.CancelPendingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	for _, row := range store.rowsForOrder(order.ID) {
		assert.Equal(t, models.CommissionStatusCancelled, row.Status)
		recipient := store.user(row.RecipientID)
		assert.Zero(t, recipient.PendingCommission)
		assert.Zero(t, recipient.AvailableCommission, "cancelled commissions were never credited")
		assert.Zero(t, recipient.ReferralCommissionEarned)
		assert.Zero(t, recipient.TotalEarnings)
	}

	cancelled, err = engine.CancelPendingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Zero(t, cancelled, "cancel is idempotent")
}

func TestCreditSkipsMissingRecipientWhole(t *testing.T) {
	// When a recipient vanished between reservation and delivery, that row
	// must stay pending with no balance moved, while the rest of the batch
	// settles normally.
	engine, store := newTestEngine()
	ids := buildChain(store, 2)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	_, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	store.removeUser(ids[1])

	credited, err := engine.CreditPendingForOrder(context.Background(), order.ID)
	require.ErrorIs(t, err, services.ErrRecipientNotFound)
	assert.Equal(t, 1, credited)

	for _, row := range store.rowsForOrder(order.ID) {
		if row.RecipientID == ids[1] {
			assert.Equal(t, models.CommissionStatusPending, row.Status, "skipped row keeps its pending status")
		} else {
			assert.Equal(t, models.CommissionStatusCredited, row.Status)
		}
	}
	second := store.user(ids[2])
	assert.Equal(t, 40.0, second.AvailableCommission)
}

func TestPendingBalanceClampedAtZero(t *testing.T) {
	// If the pending balance was already drained out-of-band, releasing the
	// reservation clamps at zero instead of going negative.
	engine, store := newTestEngine()
	ids := buildChain(store, 1)

	order := store.addOrder(ids[0], models.OrderStatusProcessing, 1000)
	_, err := engine.CreateAwardsForOrder(context.Background(), order)
	require.NoError(t, err)

	recipient := store.users[ids[1]]
	recipient.PendingCommission = 0

	cancelled, err := engine.CancelPendingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)
	assert.Zero(t, store.user(ids[1]).PendingCommission)
}
