package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/db"
	"backend-carbonsaver/internal/metrics"
	"backend-carbonsaver/internal/shared/geo"
	"backend-carbonsaver/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMinSampleDistanceM = 5.0
	lockTTL                   = 12 * time.Hour
	uniqueViolation           = "23505"
)

var (
	ErrAlreadyTracking   = errors.New("a tracking session is already active")
	ErrSessionNotFound   = errors.New("tracking session not found")
	ErrSessionNotActive  = errors.New("tracking session is not active")
	ErrNoLocations       = errors.New("tracking session has no locations")
	ErrInvalidCoordinate = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
)

var nowFn = time.Now

// releaseLockScript deletes the lock only while it still names the session.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TripRecorder persists a finished trip and credits its owner.
type TripRecorder interface {
	Record(ctx context.Context, userID string, t carbon.Trip) (carbon.Trip, error)
}

type Service struct {
	db         db.TxQuerier
	redis      *redis.Client
	hub        *stream.Hub
	trips      TripRecorder
	minSampleM float64
}

func NewService(db db.TxQuerier, rdb *redis.Client, hub *stream.Hub, trips TripRecorder, minSampleDistanceM float64) *Service {
	if minSampleDistanceM < 0 {
		minSampleDistanceM = DefaultMinSampleDistanceM
	}
	return &Service{db: db, redis: rdb, hub: hub, trips: trips, minSampleM: minSampleDistanceM}
}

// Start opens a session for the user. A user tracks at most one session at a time.
func (s *Service) Start(ctx context.Context, userID string, mode carbon.TransportationType) (Session, error) {
	if !mode.Valid() {
		return Session{}, fmt.Errorf("%w: %q", carbon.ErrUnknownTransportation, mode)
	}
	session := Session{
		ID:                 uuid.NewString(),
		UserID:             userID,
		TransportationType: mode,
		StartedAt:          nowFn().UTC(),
		Status:             StatusActive,
	}

	locked, err := s.lock(ctx, userID, session.ID)
	if err != nil {
		return Session{}, err
	}

	var existing string
	err = s.db.QueryRow(ctx, `
		SELECT id FROM track_sessions
		WHERE user_id=$1 AND status='active'
		LIMIT 1
	`, userID).Scan(&existing)
	switch {
	case err == nil:
		if locked {
			s.unlock(ctx, userID, session.ID)
		}
		return Session{}, ErrAlreadyTracking
	case !errors.Is(err, pgx.ErrNoRows):
		if locked {
			s.unlock(ctx, userID, session.ID)
		}
		return Session{}, err
	}
	if !locked {
		// The lock outlived its session; take it over.
		if err := s.redis.Set(ctx, lockKey(userID), session.ID, lockTTL).Err(); err != nil {
			return Session{}, err
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO track_sessions (id, user_id, transportation_type, started_at, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING started_at
	`, session.ID, session.UserID, string(session.TransportationType), session.StartedAt, session.Status)
	if err := row.Scan(&session.StartedAt); err != nil {
		s.unlock(ctx, userID, session.ID)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Session{}, ErrAlreadyTracking
		}
		return Session{}, err
	}

	log.Info().Str("user_id", userID).Str("session_id", session.ID).Str("mode", string(mode)).Msg("tracking started")
	return session, nil
}

// Active returns the user's running session, if any.
func (s *Service) Active(ctx context.Context, userID string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM track_sessions
		WHERE user_id=$1 AND status='active'
		LIMIT 1
	`, userID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return session, err
}

// Get returns a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM track_sessions WHERE id=$1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if session.UserID != userID {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// CanWatch reports whether the user owns the session and may follow its
// live samples.
func (s *Service) CanWatch(ctx context.Context, userID, sessionID string) (bool, error) {
	_, err := s.Get(ctx, userID, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// AddPoint stores a sample unless it lies within the minimum sample distance
// of the previous accepted one. Accepted samples extend the running distance
// and are broadcast to live subscribers. Samples for one session are applied
// one at a time under a lock on the session row.
func (s *Service) AddPoint(ctx context.Context, userID, sessionID string, input TrackPoint) (SampleResult, error) {
	if input.Latitude < -90 || input.Latitude > 90 || input.Longitude < -180 || input.Longitude > 180 {
		return SampleResult{}, ErrInvalidCoordinate
	}
	if input.RecordedAt.IsZero() {
		input.RecordedAt = nowFn().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return SampleResult{}, err
	}
	result, err := s.addPoint(ctx, tx, userID, sessionID, input)
	if err != nil {
		_ = tx.Rollback(ctx)
		return SampleResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SampleResult{}, err
	}

	if !result.Accepted {
		metrics.TrackingSamples.WithLabelValues("filtered").Inc()
		return result, nil
	}
	metrics.TrackingSamples.WithLabelValues("accepted").Inc()
	if s.hub != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			s.hub.Broadcast(sessionID, payload)
		}
	}
	return result, nil
}

func (s *Service) addPoint(ctx context.Context, q db.Querier, userID, sessionID string, input TrackPoint) (SampleResult, error) {
	session, err := lockActive(ctx, q, userID, sessionID)
	if err != nil {
		return SampleResult{}, err
	}

	deltaKm := 0.0
	var lastLat, lastLng float64
	err = q.QueryRow(ctx, `
		SELECT latitude, longitude
		FROM track_points
		WHERE session_id=$1
		ORDER BY id DESC
		LIMIT 1
	`, sessionID).Scan(&lastLat, &lastLng)
	switch {
	case err == nil:
		deltaKm = geo.HaversineKm(lastLat, lastLng, input.Latitude, input.Longitude)
		if deltaKm*1000 < s.minSampleM {
			return SampleResult{Accepted: false, TotalDistanceKm: session.TotalDistanceKm}, nil
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return SampleResult{}, err
	}

	row := q.QueryRow(ctx, `
		INSERT INTO track_points (session_id, latitude, longitude, recorded_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, sessionID, input.Latitude, input.Longitude, input.RecordedAt)
	if err := row.Scan(&input.ID, &input.CreatedAt); err != nil {
		return SampleResult{}, err
	}
	input.SessionID = sessionID

	total := session.TotalDistanceKm
	if deltaKm > 0 {
		if err := q.QueryRow(ctx, `
			UPDATE track_sessions
			SET total_distance_km = total_distance_km + $2
			WHERE id=$1
			RETURNING total_distance_km
		`, sessionID, deltaKm).Scan(&total); err != nil {
			return SampleResult{}, err
		}
	}
	return SampleResult{Accepted: true, Point: &input, TotalDistanceKm: total}, nil
}

// Summary reports the live state of a session along with the carbon and
// points it would earn if stopped now.
func (s *Service) Summary(ctx context.Context, userID, sessionID string) (Summary, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return Summary{}, err
	}

	var pointCount int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM track_points WHERE session_id=$1`, sessionID).Scan(&pointCount); err != nil {
		return Summary{}, err
	}

	duration := elapsed(session)
	avgSpeed := 0.0
	if hours := duration.Hours(); hours > 0 {
		avgSpeed = session.TotalDistanceKm / hours
	}

	return Summary{
		SessionID:          session.ID,
		Status:             session.Status,
		TransportationType: session.TransportationType,
		PointCount:         pointCount,
		DistanceKm:         session.TotalDistanceKm,
		DurationSec:        int64(duration.Seconds()),
		Duration:           carbon.FormatDuration(duration),
		CarbonSavedKg:      carbon.CarbonSaved(session.TransportationType, session.TotalDistanceKm),
		PointsEarned:       carbon.PointsEarned(session.TransportationType, session.TotalDistanceKm),
		AverageSpeedKmh:    avgSpeed,
	}, nil
}

func (s *Service) Points(ctx context.Context, userID, sessionID string) ([]TrackPoint, error) {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return listPoints(ctx, s.db, sessionID)
}

// Stop ends the session and turns it into a trip. A session without samples
// is closed without producing one.
func (s *Service) Stop(ctx context.Context, userID, sessionID string) (carbon.Trip, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return carbon.Trip{}, err
	}
	trip, err := s.close(ctx, tx, userID, sessionID)
	if err != nil && !errors.Is(err, ErrNoLocations) {
		_ = tx.Rollback(ctx)
		return carbon.Trip{}, err
	}
	if cerr := tx.Commit(ctx); cerr != nil {
		return carbon.Trip{}, cerr
	}
	if err != nil {
		s.unlock(ctx, userID, sessionID)
		return carbon.Trip{}, err
	}

	trip, err = s.trips.Record(ctx, userID, trip)
	if err != nil {
		if _, rerr := s.db.Exec(ctx, `
			UPDATE track_sessions SET status='active', ended_at=NULL WHERE id=$1
		`, sessionID); rerr != nil {
			log.Error().Err(rerr).Str("session_id", sessionID).Msg("reopen tracking session")
		}
		return carbon.Trip{}, err
	}
	if _, err := s.db.Exec(ctx, `UPDATE track_sessions SET trip_id=$2 WHERE id=$1`, sessionID, trip.ID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("trip_id", trip.ID).Msg("link trip to session")
	}
	s.unlock(ctx, userID, sessionID)

	log.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("trip_id", trip.ID).
		Int("samples", len(trip.Locations)).
		Msg("tracking stopped")
	return trip, nil
}

// close finishes a locked session. The trip distance is read under the same
// lock as the samples, so no sample lands between the two.
func (s *Service) close(ctx context.Context, q db.Querier, userID, sessionID string) (carbon.Trip, error) {
	session, err := lockActive(ctx, q, userID, sessionID)
	if err != nil {
		return carbon.Trip{}, err
	}
	points, err := listPoints(ctx, q, sessionID)
	if err != nil {
		return carbon.Trip{}, err
	}

	endedAt := nowFn().UTC()
	if len(points) == 0 {
		if err := finish(ctx, q, sessionID, StatusDiscarded, endedAt); err != nil {
			return carbon.Trip{}, err
		}
		return carbon.Trip{}, ErrNoLocations
	}

	locations := make([]carbon.LocationPoint, len(points))
	for i, p := range points {
		locations[i] = p.location()
	}
	trip, err := carbon.NewTrip(session.TransportationType, session.TotalDistanceKm, locations, endedAt.Sub(session.StartedAt))
	if err != nil {
		return carbon.Trip{}, err
	}
	if err := finish(ctx, q, sessionID, StatusCompleted, endedAt); err != nil {
		return carbon.Trip{}, err
	}
	return trip, nil
}

// Reset discards an active session and its samples without creating a trip.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE track_sessions
		SET status='discarded', ended_at=$3, total_distance_km=0
		WHERE id=$1 AND user_id=$2 AND status='active'
	`, sessionID, userID, nowFn().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, userID, sessionID); err != nil {
			return err
		}
		return ErrSessionNotActive
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM track_points WHERE session_id=$1`, sessionID); err != nil {
		return err
	}
	s.unlock(ctx, userID, sessionID)
	return nil
}

// lockActive loads the user's active session and holds its row lock until
// the surrounding transaction ends.
func lockActive(ctx context.Context, q db.Querier, userID, sessionID string) (Session, error) {
	row := q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM track_sessions WHERE id=$1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if session.UserID != userID {
		return Session{}, ErrSessionNotFound
	}
	if session.Status != StatusActive {
		return Session{}, ErrSessionNotActive
	}
	return session, nil
}

// finish moves an active session to a terminal status. Losing the race to a
// concurrent stop or reset yields ErrSessionNotActive.
func finish(ctx context.Context, q db.Querier, sessionID, status string, endedAt time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE track_sessions
		SET status=$2, ended_at=$3
		WHERE id=$1 AND status='active'
	`, sessionID, status, endedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotActive
	}
	return nil
}

// listPoints returns samples in the order they were accepted, which is the
// order the running distance was summed in.
func listPoints(ctx context.Context, q db.Querier, sessionID string) ([]TrackPoint, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, latitude, longitude, recorded_at, created_at
		FROM track_points WHERE session_id=$1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []TrackPoint{}
	for rows.Next() {
		var p TrackPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Latitude, &p.Longitude, &p.RecordedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Service) lock(ctx context.Context, userID, sessionID string) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.SetNX(ctx, lockKey(userID), sessionID, lockTTL).Result()
}

func (s *Service) unlock(ctx context.Context, userID, sessionID string) {
	if s.redis == nil {
		return
	}
	if err := releaseLockScript.Run(ctx, s.redis, []string{lockKey(userID)}, sessionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("user_id", userID).Msg("release tracking lock")
	}
}

func lockKey(userID string) string {
	return "tracking:lock:" + userID
}

const sessionColumns = `id, user_id, transportation_type, started_at, ended_at, total_distance_km, status, trip_id`

func scanSession(row pgx.Row) (Session, error) {
	var (
		session Session
		mode    string
	)
	if err := row.Scan(&session.ID, &session.UserID, &mode, &session.StartedAt, &session.EndedAt, &session.TotalDistanceKm, &session.Status, &session.TripID); err != nil {
		return Session{}, err
	}
	session.TransportationType = carbon.TransportationType(mode)
	return session, nil
}

func elapsed(session Session) time.Duration {
	end := nowFn()
	if session.EndedAt != nil {
		end = *session.EndedAt
	}
	d := end.Sub(session.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
