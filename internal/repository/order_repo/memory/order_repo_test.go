package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/domain"
	"settlement/internal/repository/order_repo"
)

func newOrder(id, ref string) *domain.Order {
	return &domain.Order{ID: id, PaymentReference: ref, Status: domain.OrderStatusPaid, Items: []domain.OrderItem{{ProductID: "p1"}}}
}

func TestCreateIfAbsentIsAtomic(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	const writers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.CreateIfAbsent(ctx, newOrder(string(rune('a'+i)), "pi_same"), &domain.OutboxMessage{ID: "m"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, order_repo.ErrAlreadyExists)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, repo.Count())
	assert.Len(t, repo.OutboxMessages(), 1)
}

func TestReadsReturnCopies(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateIfAbsent(ctx, newOrder("o1", "pi_1"), nil))

	got, err := repo.FindByPaymentReference(ctx, "pi_1")
	require.NoError(t, err)
	got.Items[0].ProductID = "mutated"

	again, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "p1", again.Items[0].ProductID)

	_, err = repo.FindByPaymentReference(ctx, "pi_2")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCompareAndSet(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateIfAbsent(ctx, newOrder("o1", "pi_1"), nil))

	require.NoError(t, repo.SetTracking(ctx, "o1", "TRK1", domain.OrderStatusPaid, domain.OrderStatusShipped))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "o1", domain.OrderStatusPaid, domain.OrderStatusCancelled), domain.ErrStatusConflict)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "o2", domain.OrderStatusPaid, domain.OrderStatusCancelled), domain.ErrOrderNotFound)

	o, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, o.Status)
	assert.Equal(t, "TRK1", o.TrackingNumber)
}

func TestAppendToHistory(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateIfAbsent(ctx, newOrder("o1", "pi_1"), nil))

	entry := domain.EmailHistoryEntry{Type: domain.NotificationOrderConfirmation, Status: domain.EmailStatusSent, SentAt: time.Now()}
	require.NoError(t, repo.AppendToHistory(ctx, "o1", entry))
	require.NoError(t, repo.AppendToHistory(ctx, "o1", entry))
	assert.ErrorIs(t, repo.AppendToHistory(ctx, "missing", entry), domain.ErrOrderNotFound)

	o, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, o.EmailHistory, 2)
	assert.Equal(t, domain.OrderStatusPaid, o.Status)
}
