package rewards

import (
	"context"
	"strings"
	"time"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/db"
	"backend-carbonsaver/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultUserName is recorded when a redemption names nobody.
const DefaultUserName = "User"

var (
	ErrUnknownReward      = carbon.ErrUnknownRedemption
	ErrInsufficientPoints = carbon.ErrInsufficientPoints
)

type Service struct {
	db      db.TxQuerier
	catalog *Catalog
}

func NewService(db db.TxQuerier, catalog *Catalog) *Service {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Service{db: db, catalog: catalog}
}

func (s *Service) Catalog() []carbon.Reward {
	return s.catalog.List()
}

// Redeem exchanges points for a reward. The balance is debited and the
// redemption stored in one transaction; a short balance changes nothing.
func (s *Service) Redeem(ctx context.Context, userID string, t carbon.RedemptionType, userName string) (Receipt, error) {
	reward, err := s.catalog.Lookup(t)
	if err != nil {
		return Receipt{}, err
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		userName = DefaultUserName
	}
	r := carbon.Redemption{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        reward.Type,
		PointsSpent: reward.PointsRequired,
		UserName:    userName,
		Date:        time.Now().UTC(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Receipt{}, err
	}
	remaining, err := account.Debit(ctx, tx, userID, reward.PointsRequired)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Receipt{}, err
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO redemptions (id, user_id, type, points_spent, user_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, r.ID, r.UserID, string(r.Type), r.PointsSpent, r.UserName, r.Date)
	if err := row.Scan(&r.Date); err != nil {
		_ = tx.Rollback(ctx)
		return Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}

	metrics.PointsRedeemed.WithLabelValues(string(r.Type)).Add(float64(r.PointsSpent))
	log.Info().
		Str("user_id", userID).
		Str("reward", string(r.Type)).
		Int("points", r.PointsSpent).
		Int("remaining", remaining).
		Msg("points redeemed")
	return Receipt{Redemption: r, RemainingPoints: remaining}, nil
}

// History lists the user's redemptions newest first.
func (s *Service) History(ctx context.Context, userID string) ([]carbon.Redemption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, points_spent, user_name, created_at
		FROM redemptions WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []carbon.Redemption{}
	for rows.Next() {
		var (
			r   carbon.Redemption
			typ string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &typ, &r.PointsSpent, &r.UserName, &r.Date); err != nil {
			return nil, err
		}
		r.Type = carbon.RedemptionType(typ)
		history = append(history, r)
	}
	return history, rows.Err()
}
