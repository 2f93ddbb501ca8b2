package models

import "time"

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Avatar       *string   `db:"avatar" json:"avatar,omitempty"`
	Status       *string   `db:"status" json:"status,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// PublicProfile is the subset of user fields visible to other users.
type PublicProfile struct {
	ID       string  `db:"id" json:"id"`
	Username string  `db:"username" json:"username"`
	Name     string  `db:"name" json:"name"`
	Avatar   *string `db:"avatar" json:"avatar,omitempty"`
}

// Profile projects the user onto its public fields.
func (u User) Profile() PublicProfile {
	return PublicProfile{ID: u.ID, Username: u.Username, Name: u.Name, Avatar: u.Avatar}
}

// ProfileUpdate carries the optional fields of a profile edit. Nil means unchanged.
type ProfileUpdate struct {
	Name     *string
	Username *string
	Status   *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Status == nil
}
