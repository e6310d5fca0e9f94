package telegram

import (
	"strconv"
	"sync/atomic"

	"subroll/pkg/subroll"
)

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the platform tagged on events produced by the Telegram runtime.
	DriverPlatform subroll.Platform = subroll.PlatformTelegram
)

// SelfIdentity remembers which Telegram user the session is logged in as.
//
// It is filled after authentication and read by the mapper to flag the bot's
// own messages and reactions.
type SelfIdentity struct {
	userID atomic.Int64
}

// Set records the authenticated user ID.
func (s *SelfIdentity) Set(userID int64) {
	if s == nil {
		return
	}
	s.userID.Store(userID)
}

// UserID returns the authenticated user ID or zero when unknown.
func (s *SelfIdentity) UserID() int64 {
	if s == nil {
		return 0
	}

	return s.userID.Load()
}

// Is reports whether actorID names the authenticated user.
func (s *SelfIdentity) Is(actorID string) bool {
	self := s.UserID()
	if self == 0 || actorID == "" {
		return false
	}

	return actorID == strconv.FormatInt(self, 10)
}
