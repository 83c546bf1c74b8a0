package domain

import "errors"

var (
	// ErrRecipientBlocked is returned by senders when the user blocked or deleted the chat.
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
	// ErrBadRequest is returned by senders when the platform rejected the message itself.
	ErrBadRequest = errors.New("platform rejected request")
)
