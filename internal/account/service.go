package account

import (
	"context"
	"errors"
	"fmt"

	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/db"
	"backend-carbonsaver/internal/metrics"

	"github.com/jackc/pgx/v5"
)

const (
	recentTripsLimit = 5
	// MaxBonusPoints bounds a single operator credit.
	MaxBonusPoints = 1_000_000
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPoints   = fmt.Errorf("points must be between 1 and %d", MaxBonusPoints)
)

// TripLister returns a user's most recent trips, newest first.
type TripLister interface {
	List(ctx context.Context, userID string, limit int) ([]carbon.Trip, error)
}

type Service struct {
	db    db.Querier
	trips TripLister
}

func NewService(db db.Querier, trips TripLister) *Service {
	return &Service{db: db, trips: trips}
}

func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, total_points, total_distance_km, total_carbon_saved_kg, updated_at
		FROM accounts WHERE user_id=$1
	`, userID)
	var a Account
	if err := row.Scan(&a.UserID, &a.TotalPoints, &a.TotalDistanceKm, &a.TotalCarbonSavedKg, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// AddPoints credits bonus points that do not come from a trip. It is an
// operator action (carbonctl points add) and has no HTTP route.
func (s *Service) AddPoints(ctx context.Context, userID string, points int) (Account, error) {
	if points <= 0 || points > MaxBonusPoints {
		return Account{}, ErrInvalidPoints
	}
	row := s.db.QueryRow(ctx, `
		UPDATE accounts
		SET total_points = total_points + $2, updated_at = now()
		WHERE user_id=$1
		RETURNING total_points, total_distance_km, total_carbon_saved_kg, updated_at
	`, userID, points)
	a := Account{UserID: userID}
	if err := row.Scan(&a.TotalPoints, &a.TotalDistanceKm, &a.TotalCarbonSavedKg, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	metrics.PointsAwarded.WithLabelValues("bonus").Add(float64(points))
	return a, nil
}

func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Account: a, RecentTrips: []carbon.Trip{}}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM trips WHERE user_id=$1`, userID).Scan(&stats.TripsCompleted); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM redemptions WHERE user_id=$1`, userID).Scan(&stats.RedemptionCount); err != nil {
		return Stats{}, err
	}
	if s.trips != nil {
		recent, err := s.trips.List(ctx, userID, recentTripsLimit)
		if err != nil {
			return Stats{}, err
		}
		if recent != nil {
			stats.RecentTrips = recent
		}
	}
	eq, err := carbon.EquivalentsFor(a.TotalCarbonSavedKg)
	if err != nil {
		return Stats{}, err
	}
	stats.Equivalents = eq
	return stats, nil
}

// Open creates the zero-valued account for a user on q, usually the
// registration transaction. Calling it twice is a no-op.
func Open(ctx context.Context, q db.Querier, userID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

// Credit adds a trip's values to the account totals. q is usually the
// transaction the trip is inserted in.
func Credit(ctx context.Context, q db.Querier, userID string, distanceKm, carbonKg float64, points int) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET total_points = total_points + $2,
		    total_distance_km = total_distance_km + $3,
		    total_carbon_saved_kg = total_carbon_saved_kg + $4,
		    updated_at = now()
		WHERE user_id=$1
	`, userID, points, distanceKm, carbonKg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Debit takes points off the balance only when the balance covers them, and
// returns the remaining balance. A short balance yields
// *carbon.InsufficientPointsError.
func Debit(ctx context.Context, q db.Querier, userID string, points int) (int, error) {
	var remaining int
	err := q.QueryRow(ctx, `
		UPDATE accounts
		SET total_points = total_points - $2, updated_at = now()
		WHERE user_id=$1 AND total_points >= $2
		RETURNING total_points
	`, userID, points).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var balance int
	if err := q.QueryRow(ctx, `SELECT total_points FROM accounts WHERE user_id=$1`, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return 0, &carbon.InsufficientPointsError{Required: points, Balance: balance}
}
