package models

import "time"

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Area string  `json:"area,omitempty"`
}

// UserProfile is the read-only view of a user the scorer works from.
type UserProfile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Interests TagSet    `json:"interests"`
	Location  *GeoPoint `json:"location,omitempty"`
}

// UserFeatures is the per-user feature vector kept in the cache. Interaction
// weights are stored undecayed; decay is applied at scoring time.
type UserFeatures struct {
	UserID       int64               `json:"user_id"`
	Interests    TagSet              `json:"interests"`
	Location     *GeoPoint           `json:"location,omitempty"`
	Interactions []InteractionRecord `json:"interactions"`
	ComputedAt   time.Time           `json:"computed_at"`

	// Epoch is the user's invalidation epoch observed before loading. A
	// vector built under an older epoch is not written back.
	Epoch int64 `json:"-"`
}

// Profile returns the user view embedded in the feature vector.
func (f *UserFeatures) Profile() *UserProfile {
	return &UserProfile{
		ID:        f.UserID,
		Interests: f.Interests,
		Location:  f.Location,
	}
}
