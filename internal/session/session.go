// Package session holds the per-user conversation state of the bot.
package session

import (
	"sync"

	"github.com/jloh02/anchored-amazing-race/internal/models"
)

type State int

const (
	Idle State = iota
	ChooseDirection
	ChooseDirectionConfirmation
	SelectChallenge
	SubmitText
	SubmitPhoto
	SubmitVideo
	AwaitApproval
	SelectSkipChallenge
	ConfirmSkip
	ConfirmBonus
)

var stateNames = [...]string{
	Idle:                        "idle",
	ChooseDirection:             "choose_direction",
	ChooseDirectionConfirmation: "choose_direction_confirmation",
	SelectChallenge:             "select_challenge",
	SubmitText:                  "submit_text",
	SubmitPhoto:                 "submit_photo",
	SubmitVideo:                 "submit_video",
	AwaitApproval:               "await_approval",
	SelectSkipChallenge:         "select_skip_challenge",
	ConfirmSkip:                 "confirm_skip",
	ConfirmBonus:                "confirm_bonus",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// SubmitStateFor maps a step type to the state that collects it.
func SubmitStateFor(t models.StepType) State {
	switch t {
	case models.StepPhoto:
		return SubmitPhoto
	case models.StepVideo:
		return SubmitVideo
	default:
		return SubmitText
	}
}

// Session is one user's conversation. Callers hold the lock while reading or
// changing it.
type Session struct {
	sync.Mutex

	UserID   int64
	ChatID   int64
	Username string

	State State
	// Direction picked but not yet confirmed.
	Direction models.Direction
	// Selected challenge: a location ID (or the bonus location) and the
	// challenge index within it.
	LocationID string
	Challenge  int
	Step       int
	// Photo file IDs collected for the current photo step.
	Photos []string
	// Message the rotating media is being cycled on.
	MediaMessageID int
	// Approval request the session is waiting on.
	Request string

	stopRotation func()
}

func New(userID, chatID int64, username string) *Session {
	return &Session{UserID: userID, ChatID: chatID, Username: username}
}

// Select starts a challenge at its first step.
func (s *Session) Select(locationID string, challenge int) {
	s.LocationID = locationID
	s.Challenge = challenge
	s.Step = 0
	s.Photos = nil
	s.Request = ""
}

func (s *Session) NextStep() {
	s.Step++
	s.Photos = nil
}

// AddPhoto buffers a photo and reports whether exactly need photos are now
// present. need below one counts as one. A full buffer takes no more photos.
func (s *Session) AddPhoto(fileID string, need int) bool {
	if need < 1 {
		need = 1
	}
	if len(s.Photos) >= need {
		return false
	}
	s.Photos = append(s.Photos, fileID)
	return len(s.Photos) == need
}

func (s *Session) DiscardPhotos() { s.Photos = nil }

// SetRotation replaces the rotating-media stop handle, stopping the previous
// rotation.
func (s *Session) SetRotation(stop func()) {
	s.StopRotation()
	s.stopRotation = stop
}

func (s *Session) StopRotation() {
	if s.stopRotation != nil {
		s.stopRotation()
		s.stopRotation = nil
	}
	s.MediaMessageID = 0
}

// Reset returns the session to Idle and stops its timers.
func (s *Session) Reset() {
	s.StopRotation()
	s.State = Idle
	s.Direction = ""
	s.LocationID = ""
	s.Challenge = 0
	s.Step = 0
	s.Photos = nil
	s.Request = ""
}
