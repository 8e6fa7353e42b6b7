// Package negotiate implements the per-seller negotiation state machine:
// offer escalation, seller reply classification, and transcript
// reconciliation against the live chat.
package negotiate

import (
	"fmt"
	"time"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/market"
)

// Conversation status values. Accepted and walked_away are terminal.
type Status string

const (
	StatusActive     Status = "active"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusWalkedAway Status = "walked_away"
)

// Message roles within a conversation record.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Message is one transcript entry. Synced marks messages recovered from the
// live chat rather than authored locally; Sent records whether delivery of a
// buyer message actually succeeded.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Round     int       `json:"round,omitempty"`
	Offer     float64   `json:"offer_price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sent      bool      `json:"sent,omitempty"`
	Synced    bool      `json:"synced,omitempty"`
}

// Record is the unit of negotiation state, one per seller/listing.
type Record struct {
	SellerID     string         `json:"seller_id"`
	Listing      market.Listing `json:"listing"`
	StartedAt    time.Time      `json:"started_at"`
	Messages     []Message      `json:"messages"`
	CurrentRound int            `json:"current_round"`
	Status       Status         `json:"status"`
	FinalPrice   float64        `json:"final_price,omitempty"`
}

// SellerID derives the stable conversation key from the seller name and the
// first 20 runes of the item title.
func SellerID(sellerName, title string) string {
	if sellerName == "" {
		sellerName = "unknown"
	}
	if title == "" {
		title = "item"
	}
	runes := []rune(title)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return fmt.Sprintf("%s_%s", sellerName, string(runes))
}

// NewRecord starts an active conversation for a listing.
func NewRecord(listing market.Listing) *Record {
	return &Record{
		SellerID:  SellerID(listing.SellerName, listing.Title),
		Listing:   listing,
		StartedAt: time.Now(),
		Status:    StatusActive,
	}
}

// BuyerMessageCount re-derives the round count from the transcript.
func (r *Record) BuyerMessageCount() int {
	n := 0
	for _, m := range r.Messages {
		if m.Role == RoleBuyer {
			n++
		}
	}
	return n
}

// LastSellerMessage returns the most recent seller turn, or nil.
func (r *Record) LastSellerMessage() *Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleSeller {
			return &r.Messages[i]
		}
	}
	return nil
}

// Contains reports whether a message with the same role and exact content is
// already in the transcript.
func (r *Record) Contains(role, content string) bool {
	for _, m := range r.Messages {
		if m.Role == role && m.Content == content {
			return true
		}
	}
	return false
}

// AppendBuyer logs a buyer message and advances the round counter.
func (r *Record) AppendBuyer(content string, round int, offer float64, sent bool) {
	r.Messages = append(r.Messages, Message{
		Role:      RoleBuyer,
		Content:   content,
		Round:     round,
		Offer:     offer,
		Timestamp: time.Now(),
		Sent:      sent,
	})
	r.CurrentRound = round
}

// AppendSeller logs a seller message.
func (r *Record) AppendSeller(content string, synced bool) {
	r.Messages = append(r.Messages, Message{
		Role:      RoleSeller,
		Content:   content,
		Timestamp: time.Now(),
		Synced:    synced,
	})
}
