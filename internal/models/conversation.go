package models

import "time"

// Conversation is the chat thread bound to one appointment between a buyer
// and a seller. The client only consumes it; the backend owns the record.
type Conversation struct {
	ID            string     `json:"id"`
	AppointmentID string     `json:"appointmentId"`
	BuyerID       string     `json:"buyerId"`
	SellerID      string     `json:"sellerId"`
	Locked        bool       `json:"locked"`
	AccessGranted bool       `json:"accessGranted"`
	ClearedAt     *time.Time `json:"clearedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Readable reports whether messages may be rendered at all for this
// conversation. A locked conversation hides everything until access is
// granted.
func (c *Conversation) Readable() bool {
	return !c.Locked || c.AccessGranted
}

// Counterpart returns the other participant's id.
func (c *Conversation) Counterpart(userID string) string {
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}
