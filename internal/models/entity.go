package models

import "time"

type Entity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Report struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"userId,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
