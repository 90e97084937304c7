package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegisterRequest is the payload for account creation
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=10,max=128"`
	FirstName string `json:"first_name" binding:"required,min=1,max=50"`
	LastName  string `json:"last_name" binding:"required,min=1,max=50"`
	Phone     string `json:"phone" binding:"omitempty,e164"`
}

// LoginRequest is the payload for password login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries either a token pair or an MFA challenge
type LoginResponse struct {
	User         *User     `json:"user,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Requires2FA  bool      `json:"requires_2fa"`
	UserID       uuid.UUID `json:"user_id,omitempty"`
}

// RoleChangeRequest is the admin/manager-facing assignment mutation
type RoleChangeRequest struct {
	Role     *string `json:"role" binding:"omitempty,oneof=manager senior carer"`
	Position *string `json:"position" binding:"omitempty,max=60"`
	Subrole  *string `json:"subrole" binding:"omitempty,max=60"`
	DSL      *bool   `json:"dsl"`
	HomeID   *string `json:"home_id" binding:"omitempty,uuid"`
}

// SelfUpdateRequest is the staff self-service assignment mutation
type SelfUpdateRequest struct {
	Position *string `json:"position" binding:"omitempty,max=60"`
	Subrole  *string `json:"subrole" binding:"omitempty,max=60"`
}

// CompanyRoleChangeRequest changes a member's company-level role
type CompanyRoleChangeRequest struct {
	Role string `json:"role" binding:"required,oneof=owner office member"`
}

// InviteRequest creates an invitation into a company
type InviteRequest struct {
	Email  string  `json:"email" binding:"required,email"`
	Role   string  `json:"role" binding:"required,oneof=office manager senior carer"`
	HomeID *string `json:"home_id" binding:"omitempty,uuid"`
	Bank   bool    `json:"bank"`
}

// BillingStatus is the computed licensing view of a company
type BillingStatus struct {
	CompanyID        uuid.UUID       `json:"company_id"`
	Plan             string          `json:"plan"`
	Status           string          `json:"status"`
	SeatLimit        int             `json:"seat_limit"`
	SeatsUsed        int             `json:"seats_used"`
	PriceMonthly     decimal.Decimal `json:"price_monthly"`
	ReadOnly         bool            `json:"read_only"`
	TrialEndsAt      time.Time       `json:"trial_ends_at"`
	CurrentPeriodEnd time.Time       `json:"current_period_end"`
}
