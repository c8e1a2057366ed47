package types

import "time"

// Message is a single chat message. It is immutable once created and is
// appended to the store before any recipient observes it via broadcast.
type Message struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	RoomId    string    `json:"roomId" gorm:"index"`
	SenderId  string    `json:"senderId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
