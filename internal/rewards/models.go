package rewards

import "backend-carbonsaver/internal/carbon"

type RedeemRequest struct {
	Type     carbon.RedemptionType `json:"type"`
	UserName string                `json:"user_name"`
}

// Receipt is a stored redemption and the balance left after it.
type Receipt struct {
	Redemption      carbon.Redemption `json:"redemption"`
	RemainingPoints int               `json:"remaining_points"`
}
