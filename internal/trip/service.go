package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/db"
	"backend-carbonsaver/internal/metrics"
	"backend-carbonsaver/internal/shared/geo"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

var ErrTripNotFound = errors.New("trip not found")

const tripColumns = `id, user_id, transportation_type, distance_km, carbon_saved_kg, points_earned, duration_sec, locations, recorded_at`

type Service struct {
	db db.TxQuerier
}

func NewService(db db.TxQuerier) *Service {
	return &Service{db: db}
}

// Build turns a client submission into a trip, deriving the distance from the
// samples when none is given.
func Build(req RecordRequest) (carbon.Trip, error) {
	distance := 0.0
	if req.DistanceKm != nil {
		distance = *req.DistanceKm
	} else {
		distance = PathDistanceKm(req.Locations)
	}
	duration := time.Duration(req.DurationSec * float64(time.Second))
	return carbon.NewTrip(req.TransportationType, distance, req.Locations, duration)
}

// PathDistanceKm sums the haversine distance between consecutive samples.
func PathDistanceKm(points []carbon.LocationPoint) float64 {
	return geo.PathDistanceKm(coords(points))
}

// Record stores the trip and adds its distance, carbon and points to the
// owner's totals in one transaction.
func (s *Service) Record(ctx context.Context, userID string, t carbon.Trip) (carbon.Trip, error) {
	t.UserID = userID
	locations, err := json.Marshal(t.Locations)
	if err != nil {
		return carbon.Trip{}, fmt.Errorf("encode locations: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return carbon.Trip{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO trips (id, user_id, transportation_type, distance_km, carbon_saved_kg, points_earned, duration_sec, locations, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING recorded_at
	`, t.ID, t.UserID, string(t.TransportationType), t.DistanceKm, t.CarbonSavedKg, t.PointsEarned, t.DurationSec, locations, t.Date)
	if err := row.Scan(&t.Date); err != nil {
		_ = tx.Rollback(ctx)
		return carbon.Trip{}, err
	}

	if err := account.Credit(ctx, tx, userID, t.DistanceKm, t.CarbonSavedKg, t.PointsEarned); err != nil {
		_ = tx.Rollback(ctx)
		return carbon.Trip{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return carbon.Trip{}, err
	}

	metrics.TripsRecorded.WithLabelValues(string(t.TransportationType)).Inc()
	metrics.CarbonSavedKg.Add(t.CarbonSavedKg)
	metrics.PointsAwarded.WithLabelValues("trip").Add(float64(t.PointsEarned))
	log.Info().
		Str("user_id", userID).
		Str("trip_id", t.ID).
		Str("mode", string(t.TransportationType)).
		Float64("distance_km", t.DistanceKm).
		Int("points", t.PointsEarned).
		Msg("trip recorded")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (carbon.Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return carbon.Trip{}, ErrTripNotFound
		}
		return carbon.Trip{}, err
	}
	return t, nil
}

// List returns the user's trips newest first. A limit <= 0 returns all of them.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]carbon.Trip, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(ctx, `
			SELECT `+tripColumns+`
			FROM trips WHERE user_id=$1
			ORDER BY recorded_at DESC
			LIMIT $2
		`, userID, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+tripColumns+`
			FROM trips WHERE user_id=$1
			ORDER BY recorded_at DESC
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []carbon.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// Near returns the user's trips with a sample within radiusKm of the point.
func (s *Service) Near(ctx context.Context, userID string, lat, lng, radiusKm float64) ([]carbon.Trip, error) {
	trips, err := s.List(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	idx := geo.NewRouteIndex()
	byID := make(map[string]carbon.Trip, len(trips))
	for _, t := range trips {
		if err := idx.Insert(t.ID, coords(t.Locations)); err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	ids, err := idx.Near(lat, lng, radiusKm)
	if err != nil {
		return nil, err
	}

	matches := make([]carbon.Trip, 0, len(ids))
	for _, t := range trips {
		for _, id := range ids {
			if id == t.ID {
				matches = append(matches, byID[id])
				break
			}
		}
	}
	return matches, nil
}

func scanTrip(row pgx.Row) (carbon.Trip, error) {
	var (
		t         carbon.Trip
		mode      string
		locations []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &mode, &t.DistanceKm, &t.CarbonSavedKg, &t.PointsEarned, &t.DurationSec, &locations, &t.Date); err != nil {
		return carbon.Trip{}, err
	}
	t.TransportationType = carbon.TransportationType(mode)
	t.Locations = []carbon.LocationPoint{}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &t.Locations); err != nil {
			return carbon.Trip{}, fmt.Errorf("decode locations of trip %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func coords(points []carbon.LocationPoint) []geo.Coord {
	out := make([]geo.Coord, len(points))
	for i, p := range points {
		out[i] = geo.Coord{Lat: p.Latitude, Lng: p.Longitude}
	}
	return out
}
