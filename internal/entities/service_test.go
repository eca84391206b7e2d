package entities

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/dbtest"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

type fakeDirectory struct {
	register models.Register
}

func (f *fakeDirectory) Get(_ context.Context, id uuid.UUID) (*models.Register, error) {
	if id != f.register.ID {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "register %s not found", id)
	}
	return &f.register, nil
}

func (f *fakeDirectory) Default(context.Context) (*registers.TypeRef, error) {
	return &registers.TypeRef{ID: f.register.ID, Type: f.register.Type, Prefix: f.register.Prefix, IsDefault: true}, nil
}

type fixture struct {
	svc  Service
	conn *gorm.DB
	reg  models.Register
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg := dbtest.SeedRegister(t, conn, "Caisse principale", "CP", nil)
	svc, err := NewService(NewRepository(conn), db.FromConn(conn), sequence.NewGenerator(conn, time.UTC, nil), &fakeDirectory{register: reg}, nil)
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, reg: reg}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f fixture) orderWithDue(t *testing.T, due int64) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, CreateOrderInput{Description: "Fournitures", Currency: enums.CurrencyXOF, Actor: "buyer"})
	require.NoError(t, err)
	proforma, err := f.svc.AddProforma(ctx, AddProformaInput{OrderID: order.ID, Supplier: "Bureau Plus", Amount: dec(due), Actor: "buyer"})
	require.NoError(t, err)
	order, err = f.svc.ValidateProforma(ctx, proforma.ID, "manager")
	require.NoError(t, err)
	return order
}

func (f fixture) apply(t *testing.T, id string, delta, tolerance decimal.Decimal) (*Entity, error) {
	t.Helper()
	var out *Entity
	err := db.FromConn(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		entity, err := f.svc.LoadPayable(context.Background(), tx, id)
		if err != nil {
			return err
		}
		out, err = f.svc.ApplyPayment(context.Background(), tx, entity, delta, tolerance)
		return err
	})
	return out, err
}

func TestCreateOrderMintsReferenceAndDefaultsRegister(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "Carburant", Currency: enums.CurrencyXOF, Actor: "buyer"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.Equal(t, fmt.Sprintf("CMD/%04d/%02d/0001", now.Year(), int(now.Month())), order.ID)
	require.Equal(t, f.reg.ID, order.RegisterID)
	require.Equal(t, enums.PaymentStatusPending, order.Status)

	second, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "Papier", Currency: enums.CurrencyXOF, Actor: "buyer"})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(second.ID, "/0002"), second.ID)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Currency: enums.CurrencyXOF, Actor: "a"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "x", Currency: "GBP", Actor: "a"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	missing := uuid.New()
	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "x", Currency: enums.CurrencyXOF, Actor: "a", RegisterID: &missing})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestValidateProformaSetsDueAndSwitchesBeforePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.orderWithDue(t, 120000)

	entity, err := f.svc.Resolve(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, entity.HasDue)
	require.True(t, entity.Due.Equal(dec(120000)))
	require.True(t, entity.Remaining.Equal(dec(120000)))

	other, err := f.svc.AddProforma(ctx, AddProformaInput{OrderID: order.ID, Supplier: "Autre", Amount: dec(90000), Actor: "buyer"})
	require.NoError(t, err)
	_, err = f.svc.ValidateProforma(ctx, other.ID, "manager")
	require.NoError(t, err)

	entity, err = f.svc.Resolve(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, entity.Due.Equal(dec(90000)))

	var validated int64
	require.NoError(t, f.conn.Model(&models.Proforma{}).Where("order_id = ? AND validated = ?", order.ID, true).Count(&validated).Error)
	require.Equal(t, int64(1), validated)
}

func TestValidateProformaRefusedOnceDifferentProformaHasPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.orderWithDue(t, 50000)

	require.NoError(t, f.conn.Create(&models.Payment{
		ID: uuid.New(), EntityID: order.ID, PaymentNumber: "T/2026/10/0001", Mode: enums.PaymentModeCheque,
		Amount: dec(1000), Currency: enums.CurrencyXOF, Fee: decimal.Zero, Status: enums.PaymentStatusPartial,
		RecordedBy: "cashier", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)

	other, err := f.svc.AddProforma(ctx, AddProformaInput{OrderID: order.ID, Supplier: "Autre", Amount: dec(60000), Actor: "buyer"})
	require.NoError(t, err)
	_, err = f.svc.ValidateProforma(ctx, other.ID, "manager")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestAddProformaCurrencyMustMatch(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "x", Currency: enums.CurrencyXOF, Actor: "a"})
	require.NoError(t, err)
	_, err = f.svc.AddProforma(context.Background(), AddProformaInput{OrderID: order.ID, Supplier: "s", Amount: dec(10), Currency: enums.CurrencyEUR, Actor: "a"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = f.svc.AddProforma(context.Background(), AddProformaInput{OrderID: "CMD/2026/10/9999", Supplier: "s", Amount: dec(10), Actor: "a"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestApplyPaymentGuardsCeiling(t *testing.T) {
	f := newFixture(t)
	order := f.orderWithDue(t, 100000)

	entity, err := f.apply(t, order.ID, dec(60000), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, string(enums.PaymentStatusPartial), entity.State)
	require.True(t, entity.Remaining.Equal(dec(40000)))

	_, err = f.apply(t, order.ID, dec(50000), decimal.Zero)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeAmountExceeded), "got %v", err)
	details := pkgerrors.As(err).Details().(AmountExceededDetails)
	require.True(t, details.Remaining.Equal(dec(40000)))
	require.True(t, details.Excess.Equal(dec(10000)))

	entity, err = f.apply(t, order.ID, dec(40500), dec(500))
	require.NoError(t, err)
	require.Equal(t, string(enums.PaymentStatusPaid), entity.State)
	require.True(t, entity.Remaining.IsZero())
	require.True(t, entity.PaymentDone)

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.Equal(dec(100500)))
	require.True(t, stored.PaymentDone)
}

func TestApplyPaymentRequiresValidatedProforma(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Description: "x", Currency: enums.CurrencyXOF, Actor: "a"})
	require.NoError(t, err)
	_, err = f.apply(t, order.ID, dec(10), decimal.Zero)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestPaymentRequestLifecycle(t *testing.T) {
	f := newFixture(t)
	request, err := f.svc.CreatePaymentRequest(context.Background(), CreatePaymentRequestInput{
		Amount: dec(25000), Currency: enums.CurrencyXOF, Beneficiary: "Transport SA", Reason: "livraison", Actor: "finance",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(request.ID, "PAY/"))
	require.True(t, request.RemainingAmount.Equal(dec(25000)))

	entity, err := f.apply(t, request.ID, dec(25000), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, string(enums.PaymentStatusPaid), entity.State)

	_, err = f.svc.CreatePaymentRequest(context.Background(), CreatePaymentRequestInput{Amount: dec(1), Currency: enums.CurrencyXOF, Reason: "x", Actor: "a"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestResolveRoutesByPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, "T/2026/10/0001")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = f.svc.Resolve(ctx, "nonsense")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = f.svc.Resolve(ctx, "FUND/CP/2026/10/0001")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	kind, err := KindOf("PC/2026/10/0001")
	require.Error(t, err)
	require.Empty(t, kind)
}

func TestSettlementStatus(t *testing.T) {
	cases := []struct {
		due, paid   int64
		hasPayments bool
		want        enums.PaymentStatus
	}{
		{100, 0, false, enums.PaymentStatusPending},
		{100, 0, true, enums.PaymentStatusUnpaid},
		{100, 40, true, enums.PaymentStatusPartial},
		{100, 100, true, enums.PaymentStatusPaid},
		{100, 103, true, enums.PaymentStatusPaid},
	}
	for _, tc := range cases {
		got := SettlementStatus(dec(tc.due), dec(tc.paid), tc.hasPayments)
		require.Equal(t, tc.want, got, "due=%d paid=%d", tc.due, tc.paid)
	}
	require.True(t, Remaining(dec(100), dec(120)).IsZero())
}
