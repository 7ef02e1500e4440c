package model

import "time"

// User covers both administrators and clients. Calendar tokens are present
// only for users who connected an external calendar.
type User struct {
	ID    string
	Name  string
	Email string
	Phone string

	IsAdmin         bool
	IsEmailVerified bool
	PasswordHash    string

	CalendarAccessToken  string
	CalendarRefreshToken string
	CalendarTokenExpiry  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the reduced user representation embedded in related entities.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
