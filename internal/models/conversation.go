package models

import "time"

// Conversation represents a listing conversation between a buyer and a seller.
type Conversation struct {
	ID              int       `db:"id" json:"id"`
	ListingID       int       `db:"listing_id" json:"listing_id"`
	BuyerID         int       `db:"buyer_id" json:"buyer_id"`
	SellerID        int       `db:"seller_id" json:"seller_id"`
	LastMessageText string    `db:"last_message_text" json:"last_message_text"`
	LastMessageAt   time.Time `db:"last_message_at" json:"last_message_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user is one of the two conversation parties.
func (c Conversation) HasParticipant(userID int) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// OtherParticipant returns the peer of the given user in the conversation.
func (c Conversation) OtherParticipant(userID int) int {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}
