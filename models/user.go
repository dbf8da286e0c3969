package models

import (
	"strings"
	"time"
)

// CompanyInfo is the agency branding printed on every generated itinerary.
type CompanyInfo struct {
	Name    string `json:"name" bson:"name" validate:"required"`
	Address string `json:"address" bson:"address"`
	Phone   string `json:"phone" bson:"phone"`
	Email   string `json:"email" bson:"email" validate:"omitempty,email"`
	Website string `json:"website" bson:"website" validate:"omitempty,url"`
	Logo    string `json:"logo" bson:"logo"`
}

// IsZero reports whether no company has been configured for the user.
func (c CompanyInfo) IsZero() bool {
	return strings.TrimSpace(c.Name) == ""
}

type User struct {
	UserID         string      `json:"userId" bson:"userId"`
	Username       string      `json:"username" bson:"username"`
	PasswordHash   string      `json:"passwordHash,omitempty" bson:"passwordHash"`
	Name           string      `json:"name" bson:"name"`
	ProfilePicture string      `json:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
	Plan           string      `json:"plan" bson:"plan"`
	CompanyInfo    CompanyInfo `json:"companyInfo" bson:"companyInfo"`
	CreatedAt      time.Time   `json:"createdAt" bson:"createdAt"`
	LastLogin      *time.Time  `json:"lastLogin" bson:"lastLogin"`
	ItineraryCount int         `json:"itineraryCount" bson:"itineraryCount"`
}

const DefaultPlan = "free"

// Public returns a copy of u that is safe to send to API callers.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
