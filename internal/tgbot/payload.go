package tgbot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadPayload = errors.New("malformed callback payload")

const (
	verdictPrefix = "chall"

	payloadYes    = "yes"
	payloadNo     = "no"
	payloadCancel = "cancel"
)

// ChallengePick is the button payload for choosing a challenge, encoded as
// "{index}_{location}". Location is a location ID or the bonus location.
type ChallengePick struct {
	Index    int
	Location string
}

func (p ChallengePick) Encode() string {
	return strconv.Itoa(p.Index) + "_" + p.Location
}

func ParseChallengePick(data string) (ChallengePick, error) {
	idx, loc, ok := strings.Cut(data, "_")
	if !ok || loc == "" {
		return ChallengePick{}, fmt.Errorf("%q: %w", data, ErrBadPayload)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return ChallengePick{}, fmt.Errorf("%q: %w", data, ErrBadPayload)
	}
	return ChallengePick{Index: n, Location: loc}, nil
}

// Verdict is an admin's answer to an approval request, encoded as
// "chall|{0|1}|{request}|{submitter}".
type Verdict struct {
	Approved  bool
	Request   string
	Submitter string
}

func (v Verdict) Encode() string {
	status := "0"
	if v.Approved {
		status = "1"
	}
	return strings.Join([]string{verdictPrefix, status, v.Request, v.Submitter}, "|")
}

func IsVerdict(data string) bool {
	return strings.HasPrefix(data, verdictPrefix+"|")
}

func ParseVerdict(data string) (Verdict, error) {
	parts := strings.Split(data, "|")
	if len(parts) != 4 || parts[0] != verdictPrefix || parts[2] == "" {
		return Verdict{}, fmt.Errorf("%q: %w", data, ErrBadPayload)
	}
	switch parts[1] {
	case "0", "1":
	default:
		return Verdict{}, fmt.Errorf("%q: %w", data, ErrBadPayload)
	}
	return Verdict{Approved: parts[1] == "1", Request: parts[2], Submitter: parts[3]}, nil
}
