package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/policy"
)

// User is an account that signs in with a password, a phone OTP or Google.
type User struct {
	BaseModel
	Email         *string     `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone         *string     `gorm:"uniqueIndex" json:"phone,omitempty"`
	GoogleID      *string     `gorm:"uniqueIndex" json:"-"`
	PasswordHash  string      `json:"-"`
	EmailVerified bool        `gorm:"not null;default:false" json:"email_verified"`
	PhoneVerified bool        `gorm:"not null;default:false" json:"phone_verified"`
	Role          policy.Role `gorm:"type:varchar(16);not null;default:visitor" json:"role"`
	SellerID      *uuid.UUID  `gorm:"type:uuid;index" json:"seller_id,omitempty"`
	Seller        *Seller     `gorm:"constraint:OnDelete:SET NULL" json:"seller,omitempty"`
	OTPCode       string      `json:"-"`
	OTPExpiresAt  *time.Time  `json:"-"`
}

var (
	errUserNoIdentity = errors.New("user needs an email, phone or google account")
	errUserNoPassword = errors.New("password is required for email accounts")
	errUserBadRole    = errors.New("role must be visitor, seller or admin")
)

// BeforeSave enforces the identity and role invariants.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = policy.RoleVisitor
	}
	if !u.Role.Valid() {
		return errUserBadRole
	}
	hasEmail := u.Email != nil && strings.TrimSpace(*u.Email) != ""
	hasPhone := u.Phone != nil && strings.TrimSpace(*u.Phone) != ""
	hasGoogle := u.GoogleID != nil && *u.GoogleID != ""
	if !hasEmail && !hasPhone && !hasGoogle {
		return errUserNoIdentity
	}
	if !hasPhone && !hasGoogle && u.PasswordHash == "" {
		return errUserNoPassword
	}
	return nil
}

// Seller is the business-owner profile linked from a User.
type Seller struct {
	BaseModel
	Name           string `gorm:"not null" json:"name"`
	PhoneNumber    string `gorm:"not null" json:"phone_number"`
	WhatsappNumber string `gorm:"not null" json:"whatsapp_number"`
	Address        string `gorm:"not null" json:"address"`
}
