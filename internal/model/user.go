package model

import "time"

// Stage marks the funnel position of a user record.
type Stage string

const (
	StageInitial          Stage = "initial"
	StageSentTestimonials Stage = "sent_testimonials"
	StageSentQuestion     Stage = "sent_question"
	StageAwaitingResponse Stage = "awaiting_response"
	StageFollowup1        Stage = "followup_1"
	StageFollowup2        Stage = "followup_2"
	StageFollowup3        Stage = "followup_3"
	StageCompleted        Stage = "completed"
)

// waitingStages are the stages where free text answers the decision prompt.
// The final follow-up is not listed: it is handled apart because a positive
// answer there sends the registration link.
var waitingStages = map[Stage]bool{
	StageSentQuestion:     true,
	StageAwaitingResponse: true,
	StageFollowup1:        true,
	StageFollowup2:        true,
}

// IsWaiting reports whether the stage expects a yes/no to the decision prompt.
func (s Stage) IsWaiting() bool {
	return waitingStages[s]
}

// ResponseType records how a user answered the decision prompt.
type ResponseType string

const (
	ResponseNone     ResponseType = "none"
	ResponsePositive ResponseType = "positive"
	ResponseNegative ResponseType = "negative"
)

// User stores the funnel record of a single Telegram chat.
type User struct {
	ID              uint  `gorm:"primaryKey"`
	ChatID          int64 `gorm:"uniqueIndex"`
	FirstName       string
	Username        string
	CurrentStage    Stage        `gorm:"index;default:initial"`
	HasResponded    bool         `gorm:"default:false"`
	ResponseType    ResponseType `gorm:"default:none"`
	LastMessageTime time.Time
	LinkSent        bool `gorm:"default:false"`
	LinkSentAt      *time.Time
	VipUnlocked     bool `gorm:"default:false"`
	ChannelsJoined  bool `gorm:"default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
