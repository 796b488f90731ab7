package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/repository/order_repo/memory"
)

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []domain.NotificationKind
}

func (f *fakeNotifier) Dispatch(_ *domain.Order, kind domain.NotificationKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func setup(t *testing.T) (*Service, *memory.OrderRepository, *fakeNotifier) {
	t.Helper()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.CreateIfAbsent(context.Background(), &domain.Order{
		ID:               "o1",
		PaymentReference: "pi_1",
		Status:           domain.OrderStatusPaid,
	}, nil))
	n := &fakeNotifier{}
	return NewService(repo, n, zap.NewNop()), repo, n
}

func TestSetTracking(t *testing.T) {
	svc, repo, n := setup(t)

	o, err := svc.SetTracking(context.Background(), "o1", " 1Z999 ")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, o.Status)
	assert.Equal(t, "1Z999", o.TrackingNumber)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationShippingUpdate}, n.kinds)

	stored, err := repo.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "1Z999", stored.TrackingNumber)

	_, err = svc.SetTracking(context.Background(), "o1", "1Z999")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSetTrackingRequiresNumber(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.SetTracking(context.Background(), "o1", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc, _, n := setup(t)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, "o1", domain.OrderStatusDelivered)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, "o1", domain.OrderStatusShipped)
	require.NoError(t, err)
	o, err := svc.UpdateStatus(ctx, "o1", domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, o.Status)

	_, err = svc.UpdateStatus(ctx, "o1", domain.OrderStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, []domain.NotificationKind{domain.NotificationShippingUpdate, domain.NotificationOrderDelivered}, n.kinds)
}

func TestUpdateStatusCancelNotifies(t *testing.T) {
	svc, _, n := setup(t)

	_, err := svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationOrderCancelled}, n.kinds)
}

func TestGetOrderNotFound(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = svc.UpdateStatus(context.Background(), "missing", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// racingRepo moves the order between the read and the write.
type racingRepo struct {
	*memory.OrderRepository
}

func (r *racingRepo) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	if err := r.OrderRepository.UpdateStatus(ctx, id, domain.OrderStatusPaid, domain.OrderStatusCancelled); err != nil {
		return err
	}
	return r.OrderRepository.UpdateStatus(ctx, id, from, to)
}

func TestUpdateStatusConflict(t *testing.T) {
	_, repo, n := setup(t)
	svc := NewService(&racingRepo{repo}, n, zap.NewNop())

	_, err := svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrStatusConflict)
	assert.Empty(t, n.kinds)
}
