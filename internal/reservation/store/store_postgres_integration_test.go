//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"egireserve/internal/reservation/models"
	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	"egireserve/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	err := s.postgres.ApplySchema(context.Background(), store.Schema)
	s.Require().NoError(err)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "reservations")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newReservation(itemID id.ItemID, amount string) *models.Reservation {
	bidder := id.BidderID{}
	if parsed, err := id.ParseBidderID("4a8f0d6e-43a1-4f55-9c38-1f1b0d2c9a11"); err == nil {
		bidder = parsed
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	amt, err := decimal.NewFromString(amount)
	s.Require().NoError(err)
	return &models.Reservation{
		ID:        id.NewReservationID(),
		ItemID:    itemID,
		BidderID:  &bidder,
		Kind:      models.KindWeak,
		AmountEUR: amt,
		Status:    models.StatusActive,
		RankState: models.RankStatePending,
		IsCurrent: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) mustItemID(val string) id.ItemID {
	itemID, err := id.ParseItemID(val)
	s.Require().NoError(err)
	return itemID
}

func (s *PostgresStoreSuite) TestInsertAndGetRoundtrip() {
	ctx := context.Background()
	itemID := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	r := s.newReservation(itemID, "150.00")

	s.Require().NoError(s.store.Insert(ctx, r))

	got, err := s.store.GetByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
	s.Equal(r.ItemID, got.ItemID)
	s.Require().NotNil(got.BidderID)
	s.Equal(r.BidderID.String(), got.BidderID.String())
	s.True(r.AmountEUR.Equal(got.AmountEUR))
	s.Equal(models.StatusActive, got.Status)
	s.Equal(models.RankStatePending, got.RankState)
	s.Nil(got.RankPosition)
	s.True(got.IsCurrent)
}

func (s *PostgresStoreSuite) TestGetByIDNotFound() {
	_, err := s.store.GetByID(context.Background(), id.NewReservationID())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFetchActiveByItemFiltersRetiredRows() {
	ctx := context.Background()
	itemID := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")

	active := s.newReservation(itemID, "200.00")
	withdrawn := s.newReservation(itemID, "300.00")
	withdrawn.Status = models.StatusWithdrawn
	withdrawn.RankState = models.RankStateWithdrawn
	withdrawn.IsCurrent = false
	other := s.newReservation(s.mustItemID("1b671a64-40d5-491e-99b0-da01ff1f3341"), "50.00")

	s.Require().NoError(s.store.Insert(ctx, active))
	s.Require().NoError(s.store.Insert(ctx, withdrawn))
	s.Require().NoError(s.store.Insert(ctx, other))

	rows, err := s.store.FetchActiveByItem(ctx, itemID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(active.ID, rows[0].ID)
}

func (s *PostgresStoreSuite) TestUpdateManyPersistsRankingFields() {
	ctx := context.Background()
	itemID := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	r := s.newReservation(itemID, "120.00")
	s.Require().NoError(s.store.Insert(ctx, r))

	pos := 1
	r.RankPosition = &pos
	r.RankState = models.RankStateHighest
	r.IsHighest = true
	r.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.UpdateMany(ctx, []*models.Reservation{r}))

	got, err := s.store.GetByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.RankPosition)
	s.Equal(1, *got.RankPosition)
	s.Equal(models.RankStateHighest, got.RankState)
	s.True(got.IsHighest)
}

func (s *PostgresStoreSuite) TestUpdateManyUnknownRow() {
	ctx := context.Background()
	ghost := s.newReservation(s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7"), "10.00")

	err := s.store.UpdateMany(ctx, []*models.Reservation{ghost})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindActiveByItemAndBidder() {
	ctx := context.Background()
	itemID := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	r := s.newReservation(itemID, "75.50")
	s.Require().NoError(s.store.Insert(ctx, r))

	got, err := s.store.FindActiveByItemAndBidder(ctx, itemID, *r.BidderID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)

	otherBidder, err := id.ParseBidderID("9f8b3a2c-6d5e-4f71-8a92-0c1d2e3f4a5b")
	s.Require().NoError(err)
	_, err = s.store.FindActiveByItemAndBidder(ctx, itemID, otherBidder)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListExpiredItemsSkipsStrongReservations() {
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	expiredItem := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	weak := s.newReservation(expiredItem, "40.00")
	weak.ExpiresAt = &past

	strongItem := s.mustItemID("1b671a64-40d5-491e-99b0-da01ff1f3341")
	strong := s.newReservation(strongItem, "40.00")
	strong.Kind = models.KindStrong
	strong.ExpiresAt = &past

	freshItem := s.mustItemID("2c3d4e5f-6a7b-4c8d-9e0f-1a2b3c4d5e6f")
	fresh := s.newReservation(freshItem, "40.00")
	future := now.Add(time.Hour)
	fresh.ExpiresAt = &future

	s.Require().NoError(s.store.Insert(ctx, weak))
	s.Require().NoError(s.store.Insert(ctx, strong))
	s.Require().NoError(s.store.Insert(ctx, fresh))

	items, err := s.store.ListExpiredItems(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(expiredItem, items[0])
}

func (s *PostgresStoreSuite) TestListByItemOrdersRankedRowsFirst() {
	ctx := context.Background()
	itemID := s.mustItemID("7c9e6679-7425-40de-944b-e07fc1f90ae7")

	second := s.newReservation(itemID, "100.00")
	posTwo := 2
	second.RankPosition = &posTwo

	first := s.newReservation(itemID, "200.00")
	posOne := 1
	first.RankPosition = &posOne
	first.RankState = models.RankStateHighest
	first.IsHighest = true

	retired := s.newReservation(itemID, "300.00")
	retired.Status = models.StatusWithdrawn
	retired.RankState = models.RankStateWithdrawn
	retired.IsCurrent = false

	s.Require().NoError(s.store.Insert(ctx, second))
	s.Require().NoError(s.store.Insert(ctx, first))
	s.Require().NoError(s.store.Insert(ctx, retired))

	rows, err := s.store.ListByItem(ctx, itemID)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal(first.ID, rows[0].ID)
	s.Equal(second.ID, rows[1].ID)
	s.Equal(retired.ID, rows[2].ID)
}
