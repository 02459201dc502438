package models

import "time"

type Role int

const (
	RoleAdmin Role = iota
	RoleGL
	RoleUnregistered
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleGL:
		return "gl"
	default:
		return "unregistered"
	}
}

// Direction is one of the four ways around the location loop. The letter is
// the sense of rotation (A forward, B backward), the digit says whether the
// group starts at the first location ("1") or at its secondary start ("0").
type Direction string

const (
	DirectionA1 Direction = "A1"
	DirectionA0 Direction = "A0"
	DirectionB1 Direction = "B1"
	DirectionB0 Direction = "B0"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionA1, DirectionA0, DirectionB1, DirectionB0:
		return true
	}
	return false
}

func (d Direction) Forward() bool { return d == DirectionA1 || d == DirectionA0 }

func (d Direction) StartsFirst() bool { return d == DirectionA1 || d == DirectionB1 }

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Group struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	BroadcastChannel    int64      `json:"broadcast_channel"`
	Direction           Direction  `json:"direction"`
	CurrentLocation     int        `json:"current_location"`
	ChallengesCompleted []int      `json:"challenges_completed"`
	ChallengesSkipped   int        `json:"challenges_skipped"`
	BonusCompleted      int        `json:"bonus_completed"`
	StartTime           *time.Time `json:"start_time"`
	EndTime             *time.Time `json:"end_time"`
	RaceCompleted       bool       `json:"race_completed"`
}

func (g *Group) RaceStarted() bool { return g.StartTime != nil }

func (g *Group) RaceEnded() bool { return g.EndTime != nil }

func (g *Group) HasCompleted(idx int) bool {
	for _, c := range g.ChallengesCompleted {
		if c == idx {
			return true
		}
	}
	return false
}

type User struct {
	Username   string
	TelegramID int64
	Registered bool
	GroupID    string
	Location   *GeoPoint
	LastUpdate *time.Time
}

type Admin struct {
	Username   string
	TelegramID int64
	Registered bool
}

type StepType string

const (
	StepText  StepType = "Text"
	StepPhoto StepType = "Photo"
	StepVideo StepType = "Video"
)

// Step is one submission inside a challenge. Answer is used by Text steps,
// NumPhoto by Photo steps that need more than one picture. Media is shown
// with the description; RotatingMedia is cycled through while the step is
// open.
type Step struct {
	Type          StepType `json:"type"`
	Description   string   `json:"description"`
	Answer        string   `json:"answer,omitempty"`
	NumPhoto      int      `json:"num_photo,omitempty"`
	Media         string   `json:"media,omitempty"`
	RotatingMedia []string `json:"rotating_media,omitempty"`
}

type Challenge struct {
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// BonusLocation is the pseudo location under which the global bonus
// challenges are stored and selected.
const BonusLocation = "bonus"

// Location is the challenge set found at one position of the loop.
type Location struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Order      int         `json:"order"`
	Challenges []Challenge `json:"challenges"`
}

type BonusState struct {
	Index     int      `json:"idx"`
	Completed []string `json:"completed"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalResolved ApprovalStatus = "resolved"
)

type ApprovalRequest struct {
	ID       string
	Status   ApprovalStatus
	Approved bool
	Approver string
}
