package consolidation

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/internal/profiles"
	"github.com/angelmondragon/quotehub-backend/internal/quotes"
	dbpkg "github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
	"github.com/angelmondragon/quotehub-backend/pkg/metrics"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	pkgpagination "github.com/angelmondragon/quotehub-backend/pkg/pagination"
)

type fixture struct {
	svc         Service
	db          *gorm.DB
	distributor uuid.UUID
	supplier    uuid.UUID
	catalog     uuid.UUID
	replicated  uuid.UUID
}

func newFixture(t *testing.T, tweak ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "consolidation-test", Output: io.Discard})

	params := ServiceParams{
		Repo:                  NewRepository(conn),
		Quotes:                quotes.NewRepository(conn),
		Profiles:              profiles.NewRepository(conn),
		Tx:                    dbpkg.NewFromConn(conn),
		Outbox:                outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:                logg,
		Metrics:               metrics.NewConsolidationMetrics(prometheus.NewRegistry()),
		DefaultDeliveryMethod: enums.DeliveryMethodShipping,
		NotesMaxLength:        40,
	}
	for _, fn := range tweak {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	f := &fixture{
		svc:         svc,
		db:          conn,
		distributor: uuid.New(),
		supplier:    uuid.New(),
		catalog:     uuid.New(),
		replicated:  uuid.New(),
	}
	contact := "Dana Buyer"
	phone := "+52 55 1234 5678"
	require.NoError(t, conn.Create(&models.BusinessProfile{
		UserID:       f.distributor,
		BusinessName: "Northside Distribution",
		ContactName:  &contact,
		Email:        "orders@northside.example",
		Phone:        &phone,
	}).Error)
	require.NoError(t, conn.Create(&models.BusinessProfile{
		UserID:       f.supplier,
		BusinessName: "Acme Wholesale",
		Email:        "sales@acme.example",
	}).Error)
	return f
}

func (f *fixture) input() GetOrCreateInput {
	return GetOrCreateInput{
		DistributorID:             f.distributor,
		SupplierID:                f.supplier,
		SourceCatalogID:           f.catalog,
		SourceReplicatedCatalogID: f.replicated,
	}
}

func (f *fixture) acceptedQuote(t *testing.T, lines ...models.QuoteItem) uuid.UUID {
	t.Helper()
	replicated := f.replicated
	quote := models.Quote{
		ID:                  uuid.New(),
		CatalogID:           uuid.New(),
		ReplicatedCatalogID: &replicated,
		RecipientUserID:     f.distributor,
		RequesterName:       "Retail Buyer",
		RequesterEmail:      "buyer@example.com",
		Status:              enums.QuoteStatusAccepted,
		DeliveryMethod:      enums.DeliveryMethodPickup,
	}
	require.NoError(t, f.db.Omit("Items").Create(&quote).Error)
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].QuoteID = quote.ID
		lines[i].SubtotalCents = lines[i].Quantity * lines[i].UnitPriceCents
		lines[i].PriceType = enums.PriceTypeRetail
		require.NoError(t, f.db.Create(&lines[i]).Error)
	}
	return quote.ID
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func itemFor(t *testing.T, detail *DraftDetail, productID uuid.UUID) Item {
	t.Helper()
	for _, item := range detail.Items {
		if item.ProductID == productID {
			return item
		}
	}
	t.Fatalf("product %s not in draft", productID)
	return Item{}
}

func TestConsolidateAndSendEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX, productY := uuid.New(), uuid.New()

	quoteA := f.acceptedQuote(t,
		models.QuoteItem{ProductID: productX, ProductName: "Product X", Quantity: 2, UnitPriceCents: 1000})
	quoteB := f.acceptedQuote(t,
		models.QuoteItem{ProductID: productX, ProductName: "Product X", Quantity: 3, UnitPriceCents: 1000},
		models.QuoteItem{ProductID: productY, ProductName: "Product Y", Quantity: 1, UnitPriceCents: 2000})

	detail, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.ConsolidatedOrderStatusDraft, detail.Status)
	assert.Equal(t, "Acme Wholesale", detail.SupplierName)
	require.Len(t, detail.Items, 2)

	x := itemFor(t, detail, productX)
	assert.Equal(t, 5, x.Quantity)
	assert.Equal(t, 5000, x.SubtotalCents)
	assert.Equal(t, "50.00", x.Subtotal)
	assert.ElementsMatch(t, []uuid.UUID{quoteA, quoteB}, x.SourceQuoteIDs)

	y := itemFor(t, detail, productY)
	assert.Equal(t, 1, y.Quantity)
	assert.Equal(t, 2000, y.SubtotalCents)
	assert.Equal(t, []uuid.UUID{quoteB}, y.SourceQuoteIDs)

	assert.Equal(t, newTotals(2, 6, 7000), detail.Totals)
	assert.Equal(t, "70.00", detail.Totals.Total)

	result, err := f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, result.QuoteID)
	assert.Equal(t, enums.ConsolidatedOrderStatusSent, result.Draft.Status)
	require.NotNil(t, result.Draft.LinkedQuoteID)
	assert.Equal(t, result.QuoteID, *result.Draft.LinkedQuoteID)

	quote, err := quotes.NewRepository(f.db).FindQuote(ctx, result.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusPending, quote.Status)
	assert.Equal(t, f.supplier, quote.RecipientUserID)
	assert.Equal(t, f.catalog, quote.CatalogID)
	require.NotNil(t, quote.RequesterUserID)
	assert.Equal(t, f.distributor, *quote.RequesterUserID)
	assert.Equal(t, "Dana Buyer", quote.RequesterName)
	assert.Equal(t, "orders@northside.example", quote.RequesterEmail)
	require.NotNil(t, quote.RequesterCompany)
	assert.Equal(t, "Northside Distribution", *quote.RequesterCompany)
	assert.Equal(t, enums.DeliveryMethodShipping, quote.DeliveryMethod)
	require.NotNil(t, quote.ConsolidatedDraftID)
	assert.Equal(t, detail.ID, *quote.ConsolidatedDraftID)
	assert.Equal(t, 7000, quote.TotalCents)
	require.Len(t, quote.Items, 2)
	for _, line := range quote.Items {
		assert.Equal(t, enums.PriceTypeWholesale, line.PriceType)
		assert.Equal(t, line.Quantity*line.UnitPriceCents, line.SubtotalCents)
	}

	sealed, err := f.svc.GetDraft(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusSent, sealed.Status)
	require.NotNil(t, sealed.SentAt)
	require.NotNil(t, sealed.LinkedQuoteID)
	assert.Equal(t, result.QuoteID, *sealed.LinkedQuoteID)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventConsolidatedOrderSent, events[0].EventType)
	assert.Equal(t, detail.ID, events[0].AggregateID)
}

func TestSyncIsIdempotentAndAdditiveOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX, productZ := uuid.New(), uuid.New()
	f.acceptedQuote(t, models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 5, UnitPriceCents: 1000})

	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)

	again, err := f.svc.Sync(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, 5, itemFor(t, again.Draft, productX).Quantity)

	f.acceptedQuote(t,
		models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 4, UnitPriceCents: 1000},
		models.QuoteItem{ProductID: productZ, ProductName: "Z", Quantity: 1, UnitPriceCents: 300})

	later, err := f.svc.Sync(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, 1, later.Inserted)
	assert.Equal(t, 1, later.Skipped)
	assert.Equal(t, 5, itemFor(t, later.Draft, productX).Quantity)
	assert.Equal(t, 1, itemFor(t, later.Draft, productZ).Quantity)
}

func TestSyncWithNoCandidatesSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, detail.Items)

	result, err := f.svc.Sync(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, newTotals(0, 0, 0), result.Draft.Totals)
}

func TestSyncGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)

	_, err = f.svc.Sync(ctx, detail.ID, uuid.New())
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Sync(ctx, uuid.New(), f.distributor)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Sync(ctx, uuid.Nil, f.distributor)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CancelDraft(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	_, err = f.svc.Sync(ctx, detail.ID, f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestGetOrCreateReturnsExistingDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.svc.CreateDraft(ctx, f.input())
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.EqualValues(t, 1, f.count(t, &models.ConsolidatedOrderDraft{}))
}

func TestCreateDraftValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.SupplierID = uuid.Nil
	_, err := f.svc.CreateDraft(ctx, in)
	requireCode(t, err, pkgerrors.CodeValidation)

	in = f.input()
	in.SupplierID = in.DistributorID
	_, err = f.svc.CreateDraft(ctx, in)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSendPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty draft", func(t *testing.T) {
		f := newFixture(t)
		draft, err := f.svc.CreateDraft(ctx, f.input())
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{DraftID: draft.ID, DistributorID: f.distributor})
		requireCode(t, err, pkgerrors.CodeStateConflict)
		assert.EqualValues(t, 0, f.count(t, &models.Quote{}))
	})

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t)
		f.acceptedQuote(t, models.QuoteItem{ProductID: uuid.New(), ProductName: "X", Quantity: 1, UnitPriceCents: 100})
		detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: uuid.New()})
		requireCode(t, err, pkgerrors.CodeForbidden)
	})

	t.Run("already sent", func(t *testing.T) {
		f := newFixture(t)
		f.acceptedQuote(t, models.QuoteItem{ProductID: uuid.New(), ProductName: "X", Quantity: 1, UnitPriceCents: 100})
		detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
		requireCode(t, err, pkgerrors.CodeStateConflict)

		var outbound int64
		require.NoError(t, f.db.Model(&models.Quote{}).Where("consolidated_draft_id = ?", detail.ID).Count(&outbound).Error)
		assert.EqualValues(t, 1, outbound)
	})

	t.Run("invalid delivery method", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Send(ctx, SendInput{DraftID: uuid.New(), DistributorID: f.distributor, DeliveryMethod: "drone"})
		requireCode(t, err, pkgerrors.CodeValidation)
	})

	t.Run("missing requester profile", func(t *testing.T) {
		f := newFixture(t)
		f.acceptedQuote(t, models.QuoteItem{ProductID: uuid.New(), ProductName: "X", Quantity: 1, UnitPriceCents: 100})
		detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
		require.NoError(t, err)
		require.NoError(t, f.db.Where("user_id = ?", f.distributor).Delete(&models.BusinessProfile{}).Error)

		_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
		requireCode(t, err, pkgerrors.CodeStateConflict)

		reloaded, err := f.svc.GetDraft(ctx, detail.ID, f.distributor)
		require.NoError(t, err)
		assert.Equal(t, enums.ConsolidatedOrderStatusDraft, reloaded.Status)
	})
}

type failingQuotes struct {
	quotes.Repository
	err error
}

func (f failingQuotes) WithTx(tx *gorm.DB) quotes.Repository {
	return failingQuotes{Repository: f.Repository.WithTx(tx), err: f.err}
}

func (f failingQuotes) CreateQuoteItems(ctx context.Context, items []models.QuoteItem) error {
	return f.err
}

func TestSendRollsBackWhenQuoteItemsFail(t *testing.T) {
	boom := errors.New("disk full")
	f := newFixture(t, func(p *ServiceParams) {
		p.Quotes = failingQuotes{Repository: p.Quotes, err: boom}
	})
	ctx := context.Background()
	f.acceptedQuote(t, models.QuoteItem{ProductID: uuid.New(), ProductName: "X", Quantity: 2, UnitPriceCents: 150})

	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
	requireCode(t, err, pkgerrors.CodeDependency)
	assert.ErrorIs(t, err, boom)

	var outbound int64
	require.NoError(t, f.db.Model(&models.Quote{}).Where("consolidated_draft_id IS NOT NULL").Count(&outbound).Error)
	assert.EqualValues(t, 0, outbound)
	assert.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}))

	reloaded, err := f.svc.GetDraft(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusDraft, reloaded.Status)
	assert.Nil(t, reloaded.LinkedQuoteID)
	assert.Nil(t, reloaded.SentAt)
}

func TestMutationsRecomputeSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX := uuid.New()
	f.acceptedQuote(t, models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 5, UnitPriceCents: 1000})

	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	x := itemFor(t, detail, productX)

	updated, err := f.svc.UpdateQuantity(ctx, x.ID, 7, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, 7000, updated.SubtotalCents)
	assert.Equal(t, x.SourceQuoteIDs, updated.SourceQuoteIDs)

	_, err = f.svc.UpdateQuantity(ctx, x.ID, 0, f.distributor)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.UpdateQuantity(ctx, x.ID, 3, uuid.New())
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.UpdateQuantity(ctx, uuid.New(), 3, f.distributor)
	requireCode(t, err, pkgerrors.CodeNotFound)

	merged, err := f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: productX, ProductName: "X", Quantity: 2, UnitPriceCents: 1,
	}, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, x.ID, merged.ID)
	assert.Equal(t, 9, merged.Quantity)
	assert.Equal(t, 9000, merged.SubtotalCents)

	variant := uuid.New()
	manual, err := f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: productX, VariantID: &variant, ProductName: "X large", Quantity: 3, UnitPriceCents: 1200,
	}, f.distributor)
	require.NoError(t, err)
	assert.NotEqual(t, x.ID, manual.ID)
	assert.Equal(t, 3600, manual.SubtotalCents)
	assert.Empty(t, manual.SourceQuoteIDs)

	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{ProductID: uuid.New(), ProductName: "W", Quantity: -1}, f.distributor)
	requireCode(t, err, pkgerrors.CodeValidation)

	afterRemove, err := f.svc.RemoveItem(ctx, x.ID, f.distributor)
	require.NoError(t, err)
	require.Len(t, afterRemove.Items, 1)
	assert.Equal(t, manual.ID, afterRemove.Items[0].ID)
	assert.Equal(t, newTotals(1, 3, 3600), afterRemove.Totals)

	var items []models.ConsolidatedOrderItem
	require.NoError(t, f.db.Find(&items).Error)
	for _, item := range items {
		assert.Equal(t, item.Quantity*item.UnitPriceCents, item.SubtotalCents)
	}
}

func requireRule(t *testing.T, err error, code pkgerrors.Code, rule string) {
	t.Helper()
	requireCode(t, err, code)
	details, ok := pkgerrors.As(err).Details().(pkgerrors.Details)
	require.True(t, ok, "expected details on %v", err)
	assert.Equal(t, rule, details["rule"])
}

func TestMutationsRejectOversizedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX := uuid.New()
	f.acceptedQuote(t, models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 5, UnitPriceCents: 1000})

	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	x := itemFor(t, detail, productX)

	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: productX, ProductName: "X", Quantity: math.MaxInt - 2, UnitPriceCents: 1000,
	}, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "quantity_max")

	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: productX, ProductName: "X", Quantity: MaxItemQuantity, UnitPriceCents: 1000,
	}, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "quantity_max")

	_, err = f.svc.UpdateQuantity(ctx, x.ID, math.MaxInt/100, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "quantity_max")

	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: uuid.New(), ProductName: "Y", Quantity: 1, UnitPriceCents: math.MaxInt32 + 1,
	}, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "unit_price_max")

	// 3000 units at $10k each is under the quantity cap but over the subtotal column
	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: uuid.New(), ProductName: "Z", Quantity: 3000, UnitPriceCents: 1_000_000,
	}, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "subtotal_max")

	pricey, err := f.svc.AddProduct(ctx, detail.ID, AddProductInput{
		ProductID: uuid.New(), ProductName: "Z", Quantity: 1, UnitPriceCents: 1_000_000,
	}, f.distributor)
	require.NoError(t, err)
	_, err = f.svc.UpdateQuantity(ctx, pricey.ID, 3000, f.distributor)
	requireRule(t, err, pkgerrors.CodeValidation, "subtotal_max")

	reloaded, err := f.svc.GetDraft(ctx, detail.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, 5, itemFor(t, reloaded, productX).Quantity)
	assert.Equal(t, 5000, itemFor(t, reloaded, productX).SubtotalCents)
	assert.Equal(t, 1, itemFor(t, reloaded, pricey.ProductID).Quantity)
}

func TestForeignDraftReportsOwnerRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.CreateDraft(ctx, f.input())
	require.NoError(t, err)

	_, err = f.svc.GetDraft(ctx, draft.ID, uuid.New())
	requireRule(t, err, pkgerrors.CodeForbidden, "draft_owner")
	assert.Equal(t, draft.ID, pkgerrors.As(err).Details().(pkgerrors.Details)["draft_id"])
}

// racingRepo hides the open draft from the first misses lookups, as if a
// concurrent caller inserted it between lookup and insert.
type racingRepo struct {
	Repository
	misses *int
}

func (r racingRepo) WithTx(tx *gorm.DB) Repository {
	return racingRepo{Repository: r.Repository.WithTx(tx), misses: r.misses}
}

func (r racingRepo) FindOpenDraft(ctx context.Context, distributorID, supplierID uuid.UUID) (*models.ConsolidatedOrderDraft, error) {
	if *r.misses > 0 {
		*r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.Repository.FindOpenDraft(ctx, distributorID, supplierID)
}

func TestGetOrCreateReturnsConcurrentWinner(t *testing.T) {
	for name, misses := range map[string]int{
		"found inside create tx":    1,
		"rejected by unique index": 2,
	} {
		t.Run(name, func(t *testing.T) {
			remaining := 0
			f := newFixture(t, func(p *ServiceParams) {
				p.Repo = racingRepo{Repository: p.Repo, misses: &remaining}
			})
			ctx := context.Background()
			winner, err := f.svc.CreateDraft(ctx, f.input())
			require.NoError(t, err)

			remaining = misses
			detail, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, winner.ID, detail.ID)
			assert.Zero(t, remaining)
			assert.EqualValues(t, 1, f.count(t, &models.ConsolidatedOrderDraft{}))
		})
	}
}

func TestMutationsRejectedAfterSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productX := uuid.New()
	f.acceptedQuote(t, models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 1, UnitPriceCents: 1000})
	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	x := itemFor(t, detail, productX)
	_, err = f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor, DeliveryMethod: enums.DeliveryMethodPickup})
	require.NoError(t, err)

	_, err = f.svc.UpdateQuantity(ctx, x.ID, 2, f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = f.svc.RemoveItem(ctx, x.ID, f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = f.svc.AddProduct(ctx, detail.ID, AddProductInput{ProductID: uuid.New(), ProductName: "N", Quantity: 1}, f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = f.svc.UpdateNotes(ctx, detail.ID, "late", f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = f.svc.CancelDraft(ctx, detail.ID, f.distributor)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.CreateDraft(ctx, f.input())
	require.NoError(t, err)

	updated, err := f.svc.UpdateNotes(ctx, draft.ID, "  deliver before friday  ", f.distributor)
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "deliver before friday", *updated.Notes)

	cleared, err := f.svc.UpdateNotes(ctx, draft.ID, "   ", f.distributor)
	require.NoError(t, err)
	assert.Nil(t, cleared.Notes)

	_, err = f.svc.UpdateNotes(ctx, draft.ID, strings.Repeat("n", 41), f.distributor)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.UpdateNotes(ctx, draft.ID, "hi", uuid.New())
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestSendCarriesNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acceptedQuote(t, models.QuoteItem{ProductID: uuid.New(), ProductName: "X", Quantity: 1, UnitPriceCents: 100})
	detail, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	_, err = f.svc.UpdateNotes(ctx, detail.ID, "dock 4", f.distributor)
	require.NoError(t, err)

	result, err := f.svc.Send(ctx, SendInput{DraftID: detail.ID, DistributorID: f.distributor})
	require.NoError(t, err)
	quote, err := quotes.NewRepository(f.db).FindQuote(ctx, result.QuoteID)
	require.NoError(t, err)
	require.NotNil(t, quote.Notes)
	assert.Equal(t, "dock 4", *quote.Notes)
}

func TestCancelFreesPairForNewDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelDraft(ctx, first.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var event models.OutboxEvent
	require.NoError(t, f.db.First(&event).Error)
	assert.Equal(t, enums.EventConsolidatedOrderCancelled, event.EventType)

	second, created, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExpireStaleDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale, err := f.svc.CreateDraft(ctx, f.input())
	require.NoError(t, err)
	other := f.input()
	other.SupplierID = uuid.New()
	fresh, err := f.svc.CreateDraft(ctx, other)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.ConsolidatedOrderDraft{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", now.Add(-40*24*time.Hour)).Error)

	_, err = f.svc.ExpireStaleDrafts(ctx, now, 0)
	requireCode(t, err, pkgerrors.CodeValidation)

	expired, err := f.svc.ExpireStaleDrafts(ctx, now.Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	reloaded, err := f.svc.GetDraft(ctx, stale.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusCancelled, reloaded.Status)

	untouched, err := f.svc.GetDraft(ctx, fresh.ID, f.distributor)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusDraft, untouched.Status)

	expired, err = f.svc.ExpireStaleDrafts(ctx, now.Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestListDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	productX := uuid.New()
	f.acceptedQuote(t, models.QuoteItem{ProductID: productX, ProductName: "X", Quantity: 2, UnitPriceCents: 500})
	withItems, _, err := f.svc.GetOrCreateDraft(ctx, f.input())
	require.NoError(t, err)

	var ids []uuid.UUID
	ids = append(ids, withItems.ID)
	for i := 0; i < 2; i++ {
		in := f.input()
		in.SupplierID = uuid.New()
		d, err := f.svc.CreateDraft(ctx, in)
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	for i, id := range ids {
		require.NoError(t, f.db.Model(&models.ConsolidatedOrderDraft{}).Where("id = ?", id).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}
	_, err = f.svc.CancelDraft(ctx, ids[1], f.distributor)
	require.NoError(t, err)

	page, err := f.svc.ListDrafts(ctx, ListParams{DistributorID: f.distributor, Params: pkgpagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Drafts, 2)
	assert.Equal(t, ids[2], page.Drafts[0].ID)
	assert.Equal(t, ids[1], page.Drafts[1].ID)
	require.NotEmpty(t, page.Cursor)

	next, err := f.svc.ListDrafts(ctx, ListParams{DistributorID: f.distributor, Params: pkgpagination.Params{Limit: 2, Cursor: page.Cursor}})
	require.NoError(t, err)
	require.Len(t, next.Drafts, 1)
	assert.Equal(t, withItems.ID, next.Drafts[0].ID)
	assert.Equal(t, "Acme Wholesale", next.Drafts[0].SupplierName)
	assert.Equal(t, newTotals(1, 2, 1000), next.Drafts[0].Totals)
	assert.Empty(t, next.Cursor)

	open := enums.ConsolidatedOrderStatusDraft
	filtered, err := f.svc.ListDrafts(ctx, ListParams{DistributorID: f.distributor, Filters: DraftFilters{Status: &open}})
	require.NoError(t, err)
	assert.Len(t, filtered.Drafts, 2)

	supplier := f.supplier
	bySupplier, err := f.svc.ListDrafts(ctx, ListParams{DistributorID: f.distributor, Filters: DraftFilters{SupplierID: &supplier}})
	require.NoError(t, err)
	require.Len(t, bySupplier.Drafts, 1)
	assert.Equal(t, withItems.ID, bySupplier.Drafts[0].ID)

	_, err = f.svc.ListDrafts(ctx, ListParams{DistributorID: f.distributor, Params: pkgpagination.Params{Cursor: "%%%"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	_, err = NewService(ServiceParams{
		Repo:                  NewRepository(conn),
		Quotes:                quotes.NewRepository(conn),
		Profiles:              profiles.NewRepository(conn),
		Tx:                    dbpkg.NewFromConn(conn),
		Outbox:                outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:                logg,
		DefaultDeliveryMethod: "teleport",
	})
	require.Error(t, err)
}
