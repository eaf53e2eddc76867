package domain

import "time"

// Conversation groups messages between a renter and a landlord about a listing.
type Conversation struct {
	ID            string    `json:"id"             db:"id"`
	ListingID     string    `json:"listing_id"     db:"listing_id"`
	RenterID      string    `json:"renter_id"      db:"renter_id"`
	LandlordID    string    `json:"landlord_id"    db:"landlord_id"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	LastMessageAt time.Time `json:"last_message_at" db:"last_message_at"`
}

// Message is a single chat message inside a conversation.
type Message struct {
	ID             string     `json:"id"              db:"id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	SenderID       string     `json:"sender_id"       db:"sender_id"`
	Body           string     `json:"body"            db:"body"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt      time.Time  `json:"created_at"      db:"created_at"`
}

// Recipient returns the conversation participant who did not send the message.
func (c *Conversation) Recipient(senderID string) string {
	if senderID == c.RenterID {
		return c.LandlordID
	}
	return c.RenterID
}

// HasParticipant reports whether userID is one of the two conversation parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.RenterID || userID == c.LandlordID
}
