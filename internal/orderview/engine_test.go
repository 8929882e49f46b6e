package orderview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alekpr/dksh-e-market-api/internal/enum"
	"github.com/alekpr/dksh-e-market-api/internal/model"
	"github.com/alekpr/dksh-e-market-api/internal/orderstore"
)

// mockSource lets each test plug in just the calls it expects.
type mockSource struct {
	getOrder     func(ctx context.Context, id string, bypassCache bool) (*model.OrderAggregate, error)
	updateStatus func(ctx context.Context, id, status, notes string) (*model.OrderAggregate, error)
	cancel       func(ctx context.Context, id, reason string) (*model.OrderAggregate, error)
	assign       func(ctx context.Context, id, assignee, notes string) (*model.OrderAggregate, error)
}

func (m *mockSource) GetOrder(ctx context.Context, id string, bypassCache bool) (*model.OrderAggregate, error) {
	return m.getOrder(ctx, id, bypassCache)
}

func (m *mockSource) UpdateStatus(ctx context.Context, id, status, notes string) (*model.OrderAggregate, error) {
	return m.updateStatus(ctx, id, status, notes)
}

func (m *mockSource) Cancel(ctx context.Context, id, reason string) (*model.OrderAggregate, error) {
	return m.cancel(ctx, id, reason)
}

func (m *mockSource) Assign(ctx context.Context, id, assignee, notes string) (*model.OrderAggregate, error) {
	return m.assign(ctx, id, assignee, notes)
}

func TestEngine_LoadSuccess(t *testing.T) {
	order := twoStoreOrder()
	src := &mockSource{
		getOrder: func(_ context.Context, id string, bypassCache bool) (*model.OrderAggregate, error) {
			assert.Equal(t, "ord-1", id)
			assert.False(t, bypassCache)
			return order, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	got, err := eng.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.ID)
	assert.Equal(t, StateReady, eng.State())
	assert.NoError(t, eng.Err())
}

func TestEngine_LoadFailureWithNothingHeld(t *testing.T) {
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			return nil, errors.New("upstream 500")
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	_, err := eng.Load(context.Background())
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ord-1", fe.OrderID)
	assert.Equal(t, StateLoadError, eng.State())
	assert.Nil(t, eng.Current())
}

func TestEngine_LoadFailureFallsBackToExternalValue(t *testing.T) {
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			return nil, errors.New("upstream timeout")
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	_, err := eng.Load(context.Background())
	require.Error(t, err)

	// The externally supplied copy survives the failed fetch.
	assert.Equal(t, StateReady, eng.State())
	require.NotNil(t, eng.Current())
	assert.Equal(t, "ord-1", eng.Current().ID)
	assert.Error(t, eng.Err())
}

func TestEngine_RefreshReplacesWithoutAliasing(t *testing.T) {
	first := twoStoreOrder()
	second := twoStoreOrder()
	second.Status = enum.OrderStatusWaitingForDelivery
	second.StoreOrders[0].Status = enum.OrderStatusWaitingForDelivery

	calls := 0
	src := &mockSource{
		getOrder: func(_ context.Context, _ string, bypassCache bool) (*model.OrderAggregate, error) {
			calls++
			if calls == 1 {
				assert.False(t, bypassCache)
				return first, nil
			}
			assert.True(t, bypassCache)
			return second, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	_, err := eng.Load(context.Background())
	require.NoError(t, err)
	before := eng.Current()

	_, err = eng.Refresh(context.Background())
	require.NoError(t, err)

	after := eng.Current()
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, after.Status)

	// Mutating the refresh input must not reach the engine's value.
	second.Items[0].Quantity = 999
	assert.NotEqual(t, 999, eng.Current().Items[0].Quantity)

	// And the previous copy stays what it was.
	assert.Equal(t, enum.OrderStatusProcessing, before.Status)
}

func TestEngine_RefreshFailureKeepsLastKnownGood(t *testing.T) {
	calls := 0
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			calls++
			if calls == 1 {
				return twoStoreOrder(), nil
			}
			return nil, errors.New("connection reset")
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	_, err := eng.Load(context.Background())
	require.NoError(t, err)

	_, err = eng.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateReady, eng.State())
	require.NotNil(t, eng.Current())
	assert.Equal(t, "EM-0001", eng.Current().OrderNumber)
	assert.Error(t, eng.Err())
}

func TestEngine_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			close(entered)
			<-release
			return twoStoreOrder(), nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Load(context.Background())
		done <- err
	}()
	<-entered

	_, err := eng.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, eng.SyncFromExternal(twoStoreOrder()))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, eng.State())
}

// A fetch landing inside the optimistic-patch window would wipe the patch,
// and the rollback of a later failing commit would then wipe the fetch
// result. Load and refresh are rejected outright until the commit settles.
func TestEngine_RefreshRejectedWhilePatchPending(t *testing.T) {
	fresher := twoStoreOrder()
	fresher.OrderNumber = "EM-0002"

	fetches := 0
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			fetches++
			return fresher, nil
		},
		updateStatus: func(context.Context, string, string, string) (*model.OrderAggregate, error) {
			return nil, &orderstore.APIError{StatusCode: 409, Message: "stale status"}
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))

	_, err := eng.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 0, fetches, "refresh must not reach the network inside the patch window")
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, eng.Current().Status)

	// The rejected commit restores the pre-patch value untouched by any
	// interleaved fetch.
	_, err = eng.Commit(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, "EM-0001", eng.Current().OrderNumber)
	assert.Equal(t, enum.OrderStatusProcessing, eng.Current().Status)

	// With the patch settled, refresh works again and wins.
	_, err = eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EM-0002", eng.Current().OrderNumber)
}

func TestEngine_SyncFromExternal(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)

	assert.False(t, eng.SyncFromExternal(nil))

	full := twoStoreOrder()
	require.True(t, eng.SyncFromExternal(full))
	assert.Equal(t, StateReady, eng.State())

	// A less complete copy, e.g. a stale list-page row, must not clobber
	// the fuller value.
	lean := twoStoreOrder()
	lean.Items = lean.Items[:1]
	assert.False(t, eng.SyncFromExternal(lean))
	assert.Len(t, eng.Current().Items, 2)

	// Equal completeness is adopted; the newer copy may carry newer fields.
	fresher := twoStoreOrder()
	fresher.Status = enum.OrderStatusWaitingForDelivery
	require.True(t, eng.SyncFromExternal(fresher))
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, eng.Current().Status)

	// Adoption copies, it does not alias.
	fresher.Items[0].Quantity = 999
	assert.NotEqual(t, 999, eng.Current().Items[0].Quantity)
}

func TestEngine_SyncIgnoredWhilePatchPending(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	err := eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, ""))
	require.NoError(t, err)

	fresher := twoStoreOrder()
	assert.False(t, eng.SyncFromExternal(fresher))
}

func TestEngine_ApplyOptimisticPatchesAdminTopLevel(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	err := eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, ""))
	require.NoError(t, err)

	assert.Equal(t, enum.OrderStatusWaitingForDelivery, eng.Current().Status)
	// Sub-orders are untouched by an admin patch.
	assert.Equal(t, enum.OrderStatusProcessing, eng.Current().StoreOrders[0].Status)
}

func TestEngine_ApplyOptimisticPatchesMerchantSubOrder(t *testing.T) {
	eng := NewEngine("ord-1", Merchant("store-a"), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	err := eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, ""))
	require.NoError(t, err)

	cur := eng.Current()
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, cur.StoreOrders[0].Status)
	// The parent status stays where it was.
	assert.Equal(t, enum.OrderStatusProcessing, cur.Status)
	// The other store's sub-order too.
	assert.Equal(t, enum.OrderStatusShipped, cur.StoreOrders[1].Status)
}

func TestEngine_ApplyOptimisticRejectsIllegalTransition(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	err := eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusDelivered, ""))
	assert.ErrorIs(t, err, ErrIllegalTransition)
	// Nothing was patched.
	assert.Equal(t, enum.OrderStatusProcessing, eng.Current().Status)
}

func TestEngine_ApplyOptimisticNotLoaded(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	err := eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusConfirmed, ""))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestEngine_CommitSuccessAdoptsReturnedAggregate(t *testing.T) {
	settled := twoStoreOrder()
	settled.Status = enum.OrderStatusWaitingForDelivery
	settled.StoreOrders[0].Status = enum.OrderStatusWaitingForDelivery

	src := &mockSource{
		updateStatus: func(_ context.Context, id, status, notes string) (*model.OrderAggregate, error) {
			assert.Equal(t, "ord-1", id)
			assert.Equal(t, enum.OrderStatusWaitingForDelivery, status)
			return settled, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))

	got, err := eng.Commit(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, got.Status)
	assert.Equal(t, StateReady, eng.State())
	assert.NoError(t, eng.Err())
}

func TestEngine_CommitWithoutBodyKeepsPatchedValue(t *testing.T) {
	src := &mockSource{
		updateStatus: func(context.Context, string, string, string) (*model.OrderAggregate, error) {
			return nil, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))

	got, err := eng.Commit(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, got.Status)
}

func TestEngine_CommitFailureRollsBackExactly(t *testing.T) {
	src := &mockSource{
		updateStatus: func(context.Context, string, string, string) (*model.OrderAggregate, error) {
			return nil, &orderstore.APIError{
				StatusCode: 409,
				Message:    "order was cancelled by the customer",
			}
		},
	}
	eng := NewEngine("ord-1", Merchant("store-a"), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))
	before := eng.Current()

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))
	require.Equal(t, enum.OrderStatusWaitingForDelivery, eng.Current().StoreOrders[0].Status)

	_, err := eng.Commit(context.Background(), cmd)
	require.Error(t, err)
	var rejected *CommandRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, CommandUpdateStatus, rejected.Command)

	// The value is the pre-command snapshot, field for field.
	assert.Equal(t, before, eng.Current())
	assert.Equal(t, StateReady, eng.State())
}

// Commit legality is judged against the pre-patch status. The optimistic
// patch already moved the visible status to the target, so validating
// against the patched value would wrongly refuse every commit.
func TestEngine_CommitValidatesAgainstPrePatchStatus(t *testing.T) {
	src := &mockSource{
		updateStatus: func(context.Context, string, string, string) (*model.OrderAggregate, error) {
			return nil, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))

	_, err := eng.Commit(context.Background(), cmd)
	assert.NoError(t, err)
}

func TestEngine_CancelFromWaitingForDelivery(t *testing.T) {
	order := twoStoreOrder()
	order.Status = enum.OrderStatusWaitingForDelivery

	var gotReason string
	src := &mockSource{
		cancel: func(_ context.Context, _ string, reason string) (*model.OrderAggregate, error) {
			gotReason = reason
			return nil, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(order))

	cmd := CancelCommand("customer requested")
	require.NoError(t, eng.ApplyOptimistic(cmd))
	got, err := eng.Commit(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "customer requested", gotReason)
	assert.Equal(t, enum.OrderStatusCancelled, got.Status)
}

func TestEngine_CancelRejectedRevertsSubOrder(t *testing.T) {
	order := twoStoreOrder()
	order.StoreOrders[0].Status = enum.OrderStatusWaitingForDelivery

	src := &mockSource{
		cancel: func(context.Context, string, string) (*model.OrderAggregate, error) {
			return nil, &orderstore.APIError{StatusCode: 409, Message: "courier already picked up"}
		},
	}
	eng := NewEngine("ord-1", Merchant("store-a"), src, nil)
	require.True(t, eng.SyncFromExternal(order))

	cmd := CancelCommand("out of stock")
	require.NoError(t, eng.ApplyOptimistic(cmd))
	require.Equal(t, enum.OrderStatusCancelled, eng.Current().StoreOrders[0].Status)

	_, err := eng.Commit(context.Background(), cmd)
	require.Error(t, err)

	view, _, viewErr := eng.View()
	require.NoError(t, viewErr)
	assert.Equal(t, enum.OrderStatusWaitingForDelivery, view.Status)
	assert.Error(t, eng.Err())
}

func TestEngine_CancelRequiresReason(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	err := eng.ApplyOptimistic(CancelCommand(""))
	assert.ErrorIs(t, err, ErrMissingReason)
}

func TestEngine_CancelFromShippedRefused(t *testing.T) {
	order := twoStoreOrder()
	order.Status = enum.OrderStatusShipped

	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(order))

	err := eng.ApplyOptimistic(CancelCommand("too late"))
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestEngine_AssignDispatches(t *testing.T) {
	var gotAssignee string
	src := &mockSource{
		assign: func(_ context.Context, _ string, assignee, _ string) (*model.OrderAggregate, error) {
			gotAssignee = assignee
			return nil, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := AssignCommand("user-7", "rush order")
	require.NoError(t, eng.ApplyOptimistic(cmd))
	_, err := eng.Commit(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "user-7", gotAssignee)
}

func TestEngine_InvalidateDiscardsInFlightFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{
		getOrder: func(context.Context, string, bool) (*model.OrderAggregate, error) {
			close(entered)
			<-release
			return twoStoreOrder(), nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Load(context.Background())
		done <- err
	}()
	<-entered
	eng.Invalidate()
	close(release)

	assert.ErrorIs(t, <-done, ErrStaleResult)
	assert.Nil(t, eng.Current())
	// The discarded fetch leaves the state where it found it.
	assert.Equal(t, StateIdle, eng.State())
}

func TestEngine_InvalidateDuringCommit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{
		updateStatus: func(context.Context, string, string, string) (*model.OrderAggregate, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}
	eng := NewEngine("ord-1", Admin(), src, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	cmd := UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")
	require.NoError(t, eng.ApplyOptimistic(cmd))

	done := make(chan error, 1)
	go func() {
		_, err := eng.Commit(context.Background(), cmd)
		done <- err
	}()
	<-entered
	eng.Invalidate()
	close(release)

	assert.ErrorIs(t, <-done, ErrStaleResult)
	// The patch was rolled back by Invalidate and the engine still holds a
	// usable value, so it reports ready rather than committing.
	assert.Equal(t, enum.OrderStatusProcessing, eng.Current().Status)
	assert.Equal(t, StateReady, eng.State())
}

func TestEngine_InvalidateRollsBackPendingPatch(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	require.NoError(t, eng.ApplyOptimistic(UpdateStatusCommand(enum.OrderStatusWaitingForDelivery, "")))
	require.Equal(t, enum.OrderStatusWaitingForDelivery, eng.Current().Status)

	eng.Invalidate()
	assert.Equal(t, enum.OrderStatusProcessing, eng.Current().Status)
}

func TestEngine_ViewNotLoaded(t *testing.T) {
	eng := NewEngine("ord-1", Admin(), &mockSource{}, nil)
	_, _, err := eng.View()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestEngine_ViewCarriesLegalStatuses(t *testing.T) {
	eng := NewEngine("ord-1", Merchant("store-b"), &mockSource{}, nil)
	require.True(t, eng.SyncFromExternal(twoStoreOrder()))

	view, legal, err := eng.View()
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusShipped, view.Status)
	assert.Equal(t, []string{enum.OrderStatusDelivered}, legal)
}
