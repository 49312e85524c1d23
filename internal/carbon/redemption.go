package carbon

import (
	"fmt"
	"time"
)

// RedemptionType identifies a reward points can be exchanged for.
type RedemptionType string

const (
	Donate    RedemptionType = "donate"
	PlantTree RedemptionType = "plant_tree"
)

// Reward is a catalog entry.
type Reward struct {
	Type           RedemptionType `json:"type" yaml:"type"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	PointsRequired int            `json:"points_required" yaml:"points_required"`
}

// DefaultRewards is the built-in catalog.
var DefaultRewards = []Reward{
	{
		Type:           Donate,
		Name:           "Donate to Environmental Cause",
		Description:    "Your donation will support environmental conservation projects",
		PointsRequired: 1500,
	},
	{
		Type:           PlantTree,
		Name:           "Plant a Tree",
		Description:    "We'll plant a tree in your name to help combat climate change",
		PointsRequired: 2000,
	},
}

// Redemption records an exchange of points for a reward.
type Redemption struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        RedemptionType `json:"type"`
	PointsSpent int            `json:"points_spent"`
	UserName    string         `json:"user_name"`
	Date        time.Time      `json:"date"`
}

// CanRedeem reports whether a balance covers the reward.
func (r Reward) CanRedeem(balance int) bool {
	return balance >= r.PointsRequired
}

// InsufficientPointsError carries the shortfall of a rejected redemption.
type InsufficientPointsError struct {
	Required int
	Balance  int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("you need %d points to redeem this item, you currently have %d points", e.Required, e.Balance)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}
