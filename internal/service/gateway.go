package service

// Gateway is the outbound messaging surface the services need. The Telegram
// transport implements it; tests substitute a fake.
type Gateway interface {
	SendText(chatID int64, text string) error
	SendVideo(chatID int64, fileID string) error
	// SendOpeningVideo sends the start video with the join-channel button.
	SendOpeningVideo(chatID int64, fileID string) error
	// SendDecisionPrompt sends the question together with the unlock keyboard.
	SendDecisionPrompt(chatID int64, text string) error
	// NotifyOperator is best-effort; failures are logged by the transport.
	NotifyOperator(text string)
}

// MembershipChecker resolves a user's status in a channel.
type MembershipChecker interface {
	ChatMemberStatus(channelID string, chatID int64) (string, error)
}
