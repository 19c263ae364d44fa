package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
	"github.com/washdeskhq/washdesk/internal/storage/memory"
)

type fakeGateway struct {
	initErr    error
	initCalls  int
	lastInit   *models.PaystackInitRequest
	verifyErr  error
	verifyResp *models.PaystackTransaction
}

func (f *fakeGateway) Initialize(ctx context.Context, req *models.PaystackInitRequest) (*models.PaystackInitData, error) {
	f.initCalls++
	f.lastInit = req
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &models.PaystackInitData{
		AuthorizationURL: "https://checkout.paystack.com/abc123",
		AccessCode:       "abc123",
		Reference:        req.Reference,
	}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	resp := *f.verifyResp
	resp.Reference = reference
	return &resp, nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

type fixture struct {
	store    *memory.Store
	gateway  *fakeGateway
	service  *Service
	user     *models.User
	customer *models.Customer
	order    *models.Order
}

func newFixture(t *testing.T, total string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	user := &models.User{
		Username: "ama",
		Email:    "ama@example.com",
		Role:     models.RoleClient,
		IsActive: true,
	}
	require.NoError(t, store.Users().Create(ctx, user))

	customer := &models.Customer{UserID: user.ID, PhoneNumber: "+233200000001"}
	require.NoError(t, store.Customers().Create(ctx, customer))

	order := &models.Order{
		OrderNumber:   "ORD-20260815-0001",
		CustomerID:    customer.ID,
		OrderStatus:   models.OrderPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   dec(t, total),
		AmountPaid:    decimal.Zero,
	}
	require.NoError(t, store.Orders().Create(ctx, order))

	gateway := &fakeGateway{}
	return &fixture{
		store:    store,
		gateway:  gateway,
		service:  NewService(store, gateway, "https://washdesk.example.com/payment/callback", common.NewSilentLogger()),
		user:     user,
		customer: customer,
		order:    order,
	}
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	appErr := apperr.From(err)
	assert.Equal(t, code, appErr.Code)
}

func TestInitializeSuccess(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	result, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "50.00"))
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc123", result.AuthorizationURL)
	assert.Regexp(t, `^PAY-\d+-[0-9A-F]{12}$`, result.Reference)

	payment, err := f.store.Payments().GetByReference(ctx, result.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.True(t, payment.Amount.Equal(dec(t, "50.00")))

	require.NotNil(t, f.gateway.lastInit)
	assert.Equal(t, int64(5000), f.gateway.lastInit.Amount)
	assert.Equal(t, "ama@example.com", f.gateway.lastInit.Email)
}

func TestInitializeGatewayFailureMarksIntentFailed(t *testing.T) {
	f := newFixture(t, "50.00")
	f.gateway.initErr = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "50.00"))
	requireCode(t, err, apperr.GatewayError)

	// The pending row persisted before the gateway call survives as an
	// audit record, flipped to failed.
	payments, err := f.store.Payments().ListByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentFailed, payments[0].Status)
	assert.Contains(t, payments[0].Metadata["error"], "connection reset")
}

func TestInitializePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("staff cannot initialize", func(t *testing.T) {
		f := newFixture(t, "50.00")
		staff := &models.User{Username: "kofi", Email: "kofi@example.com", Role: models.RoleAdmin, IsActive: true}
		require.NoError(t, f.store.Users().Create(ctx, staff))
		_, err := f.service.Initialize(ctx, staff, f.order.ID, dec(t, "10.00"))
		requireCode(t, err, apperr.PermissionDenied)
	})

	t.Run("order owned by someone else", func(t *testing.T) {
		f := newFixture(t, "50.00")
		other := &models.User{Username: "efua", Email: "efua@example.com", Role: models.RoleClient, IsActive: true}
		require.NoError(t, f.store.Users().Create(ctx, other))
		require.NoError(t, f.store.Customers().Create(ctx, &models.Customer{UserID: other.ID}))
		_, err := f.service.Initialize(ctx, other, f.order.ID, dec(t, "10.00"))
		requireCode(t, err, apperr.PermissionDenied)
	})

	t.Run("order already paid", func(t *testing.T) {
		f := newFixture(t, "50.00")
		f.order.PaymentStatus = models.PaymentStatusPaid
		f.order.AmountPaid = f.order.TotalAmount
		require.NoError(t, f.store.Orders().Update(ctx, f.order))
		_, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "10.00"))
		requireCode(t, err, apperr.OrderAlreadyPaid)
	})

	t.Run("amount exactly outstanding succeeds", func(t *testing.T) {
		f := newFixture(t, "50.00")
		f.order.AmountPaid = dec(t, "20.00")
		f.order.PaymentStatus = models.PaymentStatusPartiallyPaid
		require.NoError(t, f.store.Orders().Update(ctx, f.order))
		_, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "30.00"))
		require.NoError(t, err)
	})

	t.Run("amount one cent over outstanding rejected", func(t *testing.T) {
		f := newFixture(t, "50.00")
		f.order.AmountPaid = dec(t, "20.00")
		f.order.PaymentStatus = models.PaymentStatusPartiallyPaid
		require.NoError(t, f.store.Orders().Update(ctx, f.order))
		_, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "30.01"))
		requireCode(t, err, apperr.AmountExceedsBalance)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		f := newFixture(t, "50.00")
		_, err := f.service.Initialize(ctx, f.user, f.order.ID, decimal.Zero)
		requireCode(t, err, apperr.InvalidAmount)
	})

	t.Run("missing email rejected", func(t *testing.T) {
		f := newFixture(t, "50.00")
		f.user.Email = ""
		require.NoError(t, f.store.Users().Update(ctx, f.user))
		_, err := f.service.Initialize(ctx, f.user, f.order.ID, dec(t, "10.00"))
		requireCode(t, err, apperr.EmailNotFound)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t, "50.00")
		_, err := f.service.Initialize(ctx, f.user, 999, dec(t, "10.00"))
		requireCode(t, err, apperr.OrderNotFound)
	})
}

func (f *fixture) initialize(t *testing.T, amount string) *models.Payment {
	t.Helper()
	result, err := f.service.Initialize(context.Background(), f.user, f.order.ID, dec(t, amount))
	require.NoError(t, err)
	return result.Payment
}

func successResponse(amountMinor, feesMinor int64) *models.PaystackTransaction {
	return &models.PaystackTransaction{
		ID:       424242,
		Status:   "success",
		Amount:   amountMinor,
		Fees:     feesMinor,
		Currency: "GHS",
		Channel:  "mobile_money",
	}
}

func TestCallbackSuccessUpdatesOrder(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "50.00")
	f.gateway.verifyResp = successResponse(5000, 95)

	result, err := f.service.HandleCallback(ctx, payment.Reference)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, f.order.ID, result.OrderID)

	got, err := f.store.Payments().GetByReference(ctx, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, got.Status)
	assert.Equal(t, "424242", got.TransactionID)
	assert.True(t, got.Fees.Equal(dec(t, "0.95")))
	require.NotNil(t, got.VerifiedAt)

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.True(t, order.AmountPaid.Equal(dec(t, "50.00")))
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestCallbackReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "30.00")
	f.gateway.verifyResp = successResponse(3000, 50)

	first, err := f.service.HandleCallback(ctx, payment.Reference)
	require.NoError(t, err)
	require.True(t, first.Success)

	afterFirst, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)

	second, err := f.service.HandleCallback(ctx, payment.Reference)
	require.NoError(t, err)
	require.True(t, second.Success)

	afterSecond, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)

	assert.True(t, afterFirst.AmountPaid.Equal(afterSecond.AmountPaid))
	assert.Equal(t, afterFirst.PaymentStatus, afterSecond.PaymentStatus)
	assert.True(t, afterSecond.AmountPaid.Equal(dec(t, "30.00")))
	assert.Equal(t, models.PaymentStatusPartiallyPaid, afterSecond.PaymentStatus)
}

func TestCallbackAggregatesMultipleIntents(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()

	first := f.initialize(t, "30.00")
	f.gateway.verifyResp = successResponse(3000, 0)
	_, err := f.service.HandleCallback(ctx, first.Reference)
	require.NoError(t, err)

	second := f.initialize(t, "20.00")
	f.gateway.verifyResp = successResponse(2000, 0)
	_, err = f.service.HandleCallback(ctx, second.Reference)
	require.NoError(t, err)

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.True(t, order.AmountPaid.Equal(dec(t, "50.00")))
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestCallbackAmountMismatchFailsIntent(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "50.00")
	// Gateway reports 45.00 against an intent for 50.00.
	f.gateway.verifyResp = successResponse(4500, 0)

	_, err := f.service.HandleCallback(ctx, payment.Reference)
	requireCode(t, err, apperr.AmountMismatch)

	got, err := f.store.Payments().GetByReference(ctx, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	assert.Contains(t, got.Metadata["amount_mismatch"], "45.00")

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.True(t, order.AmountPaid.IsZero())
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}

// rollbackStore wraps the in-memory store with a WithTx that undoes payment
// writes when fn returns an error, matching the database contract.
type rollbackStore struct {
	*memory.Store
	orderID int64
}

func (r *rollbackStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Storage) error) error {
	before, err := r.Payments().ListByOrder(ctx, r.orderID)
	if err != nil {
		return err
	}
	err = r.Store.WithTx(ctx, fn)
	if err != nil {
		for _, p := range before {
			if uerr := r.Payments().Update(ctx, p); uerr != nil {
				return uerr
			}
		}
	}
	return err
}

func TestCallbackAmountMismatchMarkSurvivesRollback(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "50.00")

	store := &rollbackStore{Store: f.store, orderID: f.order.ID}
	service := NewService(store, f.gateway, "https://washdesk.example.com/payment/callback", common.NewSilentLogger())

	f.gateway.verifyResp = successResponse(4500, 0)
	_, err := service.HandleCallback(ctx, payment.Reference)
	requireCode(t, err, apperr.AmountMismatch)

	// The failed mark and discrepancy commit even though the callback errors.
	got, err := f.store.Payments().GetByReference(ctx, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	assert.Contains(t, got.Metadata["amount_mismatch"], "45.00")
}

func TestCallbackWithinToleranceAccepted(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "50.00")
	// One pesewa of rounding slack is absorbed.
	f.gateway.verifyResp = successResponse(4999, 0)

	result, err := f.service.HandleCallback(ctx, payment.Reference)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCallbackGatewayReportsFailure(t *testing.T) {
	f := newFixture(t, "50.00")
	ctx := context.Background()
	payment := f.initialize(t, "50.00")
	f.gateway.verifyResp = &models.PaystackTransaction{
		Status:          "abandoned",
		Amount:          5000,
		GatewayResponse: "The transaction was not completed",
	}

	result, err := f.service.HandleCallback(ctx, payment.Reference)
	require.NoError(t, err)
	assert.False(t, result.Success)

	got, err := f.store.Payments().GetByReference(ctx, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)

	order, err := f.store.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.True(t, order.AmountPaid.IsZero())
}

func TestCallbackVerifyError(t *testing.T) {
	f := newFixture(t, "50.00")
	payment := f.initialize(t, "50.00")
	f.gateway.verifyErr = errors.New("timeout")

	_, err := f.service.HandleCallback(context.Background(), payment.Reference)
	requireCode(t, err, apperr.GatewayError)

	// Verification failure never mutates local state.
	got, err := f.store.Payments().GetByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.Status)
}

func TestCallbackUnknownReference(t *testing.T) {
	f := newFixture(t, "50.00")
	f.gateway.verifyResp = successResponse(5000, 0)

	_, err := f.service.HandleCallback(context.Background(), "PAY-1-DEADBEEF0000")
	requireCode(t, err, apperr.RecordNotFound)
}
