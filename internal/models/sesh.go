package models

import (
	"fmt"
	"time"
)

// Bounds for the optional sesh attributes, mirrored by the mobile form
const (
	MaxRevelationsLength = 160
	MinBristolScore      = 0
	MaxBristolScore      = 7
)

// Coordinates is a lat/lon pair from the device's last known position
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// SeshLocation holds where a sesh happened. City is only filled in during
// sync/create by reverse geocoding, never by the client directly.
type SeshLocation struct {
	Coordinates Coordinates `bson:"coordinates" json:"coordinates"`
	City        string      `bson:"city,omitempty" json:"city,omitempty"`
}

// Sesh is one tracked poop session.
// Locally-queued seshes carry a client-generated UUID; server-confirmed
// seshes carry a server-assigned ID. The two ID spaces are disjoint.
type Sesh struct {
	ID           string        `bson:"_id,omitempty" json:"id"`
	User         string        `bson:"user,omitempty" json:"user,omitempty"`
	PooProfile   string        `bson:"pooProfile,omitempty" json:"poo_profile,omitempty"`
	IsPublic     bool          `bson:"isPublic" json:"is_public"`
	CompanyTime  bool          `bson:"companyTime" json:"company_time"`
	IsAirplane   bool          `bson:"isAirplane,omitempty" json:"is_airplane,omitempty"`
	Location     *SeshLocation `bson:"location,omitempty" json:"location,omitempty"`
	Revelations  string        `bson:"revelations,omitempty" json:"revelations,omitempty"`
	BristolScore int           `bson:"bristolScore" json:"bristol_score"`
	Started      time.Time     `bson:"started" json:"started"`
	Ended        *time.Time    `bson:"ended,omitempty" json:"ended,omitempty"` // nil = still open

	// Open mirrors Ended == nil as an indexable field. A partial unique
	// index on {user, isOpen:true} enforces the single-active-sesh
	// invariant server-side instead of by convention.
	Open bool `bson:"isOpen" json:"-"`
}

// IsOpen reports whether the sesh has not been ended yet
func (s *Sesh) IsOpen() bool {
	return !s.Started.IsZero() && s.Ended == nil
}

// SeshUpdate is a partial update to an open sesh. Nil fields are left untouched.
type SeshUpdate struct {
	IsPublic     *bool         `json:"is_public,omitempty"`
	CompanyTime  *bool         `json:"company_time,omitempty"`
	Revelations  *string       `json:"revelations,omitempty"`
	BristolScore *int          `json:"bristol_score,omitempty"`
	Location     *SeshLocation `json:"location,omitempty"`
	Ended        *time.Time    `json:"ended,omitempty"`
}

// Validate checks the form-level bounds on a partial update
func (u *SeshUpdate) Validate() error {
	if u.Revelations != nil && len(*u.Revelations) > MaxRevelationsLength {
		return fmt.Errorf("revelations must be at most %d characters", MaxRevelationsLength)
	}
	if u.BristolScore != nil && (*u.BristolScore < MinBristolScore || *u.BristolScore > MaxBristolScore) {
		return fmt.Errorf("bristol score must be between %d and %d", MinBristolScore, MaxBristolScore)
	}
	return nil
}

// ApplyTo merges the update into a sesh in place
func (u *SeshUpdate) ApplyTo(s *Sesh) {
	if u.IsPublic != nil {
		s.IsPublic = *u.IsPublic
	}
	if u.CompanyTime != nil {
		s.CompanyTime = *u.CompanyTime
	}
	if u.Revelations != nil {
		s.Revelations = *u.Revelations
	}
	if u.BristolScore != nil {
		s.BristolScore = *u.BristolScore
	}
	if u.Location != nil {
		s.Location = u.Location
	}
	if u.Ended != nil {
		s.Ended = u.Ended
	}
}

// SyncResult aggregates a sync run: every queued item settles independently
// and is tallied here after all outcomes are known.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// StartSeshRequest is the HTTP payload for starting a sesh
type StartSeshRequest struct {
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	IsAirplane  bool         `json:"is_airplane,omitempty"`
}

// SeshHistoryResponse wraps a page of finished seshes
type SeshHistoryResponse struct {
	Seshes     []Sesh `json:"seshes"`
	TotalCount int    `json:"total_count"`
}
