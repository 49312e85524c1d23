package account

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backend-carbonsaver/internal/carbon"

	"github.com/pashagolub/pgxmock/v3"
)

var errQuery = errors.New("query failed")

var accountCols = []string{"user_id", "total_points", "total_distance_km", "total_carbon_saved_kg", "updated_at"}

type fakeTrips struct {
	trips []carbon.Trip
	err   error
	limit int
}

func (f *fakeTrips) List(_ context.Context, _ string, limit int) ([]carbon.Trip, error) {
	f.limit = limit
	return f.trips, f.err
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	return mock
}

func TestOpenAndGet(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	svc := NewService(mock, nil)

	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := Open(context.Background(), mock, "user-1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now()
	mock.ExpectQuery(`SELECT user_id, total_points, total_distance_km, total_carbon_saved_kg, updated_at`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(accountCols).AddRow("user-1", 4275, 2.5, 0.4275, now))
	a, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.TotalPoints != 4275 || a.TotalDistanceKm != 2.5 {
		t.Fatalf("unexpected account %+v", a)
	}

	mock.ExpectQuery(`FROM accounts WHERE user_id=\$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(accountCols))
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddPoints(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	svc := NewService(mock, nil)

	for _, points := range []int{0, -5, MaxBonusPoints + 1, math.MaxInt} {
		if _, err := svc.AddPoints(context.Background(), "user-1", points); !errors.Is(err, ErrInvalidPoints) {
			t.Fatalf("points %d: expected invalid points, got %v", points, err)
		}
	}

	mock.ExpectQuery(`UPDATE accounts`).
		WithArgs("user-1", 250).
		WillReturnRows(pgxmock.NewRows([]string{"total_points", "total_distance_km", "total_carbon_saved_kg", "updated_at"}).
			AddRow(4525, 2.5, 0.4275, time.Now()))
	a, err := svc.AddPoints(context.Background(), "user-1", 250)
	if err != nil {
		t.Fatalf("add points: %v", err)
	}
	if a.TotalPoints != 4525 {
		t.Fatalf("unexpected total %d", a.TotalPoints)
	}

	mock.ExpectQuery(`UPDATE accounts`).
		WithArgs("ghost", 10).
		WillReturnRows(pgxmock.NewRows([]string{"total_points", "total_distance_km", "total_carbon_saved_kg", "updated_at"}))
	if _, err := svc.AddPoints(context.Background(), "ghost", 10); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStats(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	recent, _ := carbon.NewTrip(carbon.Cycling, 10, nil, time.Hour)
	trips := &fakeTrips{trips: []carbon.Trip{recent}}
	svc := NewService(mock, trips)

	mock.ExpectQuery(`FROM accounts WHERE user_id`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(accountCols).AddRow("user-1", 17100, 10.0, 1.71, time.Now()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trips`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM redemptions`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	stats, err := svc.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TripsCompleted != 1 || len(stats.RecentTrips) != 1 || trips.limit != recentTripsLimit {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Equivalents.CarKmAvoided < 9.99 || stats.Equivalents.CarKmAvoided > 10.01 {
		t.Fatalf("unexpected equivalents %+v", stats.Equivalents)
	}

	trips.err = errQuery
	mock.ExpectQuery(`FROM accounts WHERE user_id`).
		WillReturnRows(pgxmock.NewRows(accountCols).AddRow("user-1", 0, 0.0, 0.0, time.Now()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trips`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM redemptions`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	if _, err := svc.Stats(context.Background(), "user-1"); !errors.Is(err, errQuery) {
		t.Fatalf("expected trip list error, got %v", err)
	}
}

func TestCredit(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE accounts`).
		WithArgs("user-1", 4275, 2.5, 0.4275).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := Credit(context.Background(), mock, "user-1", 2.5, 0.4275, 4275); err != nil {
		t.Fatalf("credit: %v", err)
	}

	mock.ExpectExec(`UPDATE accounts`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := Credit(context.Background(), mock, "ghost", 1, 1, 1); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectExec(`UPDATE accounts`).WillReturnError(errQuery)
	if err := Credit(context.Background(), mock, "user-1", 1, 1, 1); !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestDebit(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`WHERE user_id=\$1 AND total_points >= \$2`).
		WithArgs("user-1", 1500).
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}).AddRow(0))
	remaining, err := Debit(ctx, mock, "user-1", 1500)
	if err != nil || remaining != 0 {
		t.Fatalf("debit: %d %v", remaining, err)
	}

	mock.ExpectQuery(`WHERE user_id=\$1 AND total_points >= \$2`).
		WithArgs("user-1", 1500).
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}))
	mock.ExpectQuery(`SELECT total_points FROM accounts`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}).AddRow(1499))
	_, err = Debit(ctx, mock, "user-1", 1500)
	var short *carbon.InsufficientPointsError
	if !errors.As(err, &short) || short.Balance != 1499 || short.Required != 1500 {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	mock.ExpectQuery(`WHERE user_id=\$1 AND total_points >= \$2`).WillReturnError(errQuery)
	if _, err := Debit(ctx, mock, "user-1", 1); !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}

	mock.ExpectQuery(`WHERE user_id=\$1 AND total_points >= \$2`).
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}))
	mock.ExpectQuery(`SELECT total_points FROM accounts`).
		WillReturnError(errQuery)
	if _, err := Debit(ctx, mock, "user-1", 1); !errors.Is(err, errQuery) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
