package wire

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	// TempID is echoed back by the server on the confirmed new_message.
	TempID string `json:"temp_id,omitempty"`
}

// TypingPayload is the body of typing.
type TypingPayload struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// AckMessagePayload is the body of ack_message.
type AckMessagePayload struct {
	MessageID string `json:"message_id"`
}
