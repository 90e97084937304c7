package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Company roles
const (
	CompanyRoleOwner  = "owner"
	CompanyRoleOffice = "office"
	CompanyRoleMember = "member"
)

// Home staff roles, ordered by seniority
const (
	StaffRoleManager = "manager"
	StaffRoleSenior  = "senior"
	StaffRoleCarer   = "carer"
)

// Subscription statuses
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// User represents an account in the system
type User struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Email         string    `json:"email" gorm:"uniqueIndex" validate:"required,email,max=254"`
	PasswordHash  string    `json:"-" gorm:"column:password_hash"`
	FirstName     string    `json:"first_name" validate:"required,min=1,max=50"`
	LastName      string    `json:"last_name" validate:"required,min=1,max=50"`
	Phone         string    `json:"phone" validate:"omitempty,e164"`
	PlatformAdmin bool      `json:"platform_admin" gorm:"default:false"`
	MFAEnabled    bool      `json:"mfa_enabled"`
	TOTPSecret    string    `json:"-" gorm:"column:totp_secret"`
	LastLogin     time.Time `json:"last_login"`
	LastMFA       time.Time `json:"last_mfa"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Company represents a tenant operating one or more care homes
type Company struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Name      string    `json:"name" validate:"required,min=2,max=120"`
	Slug      string    `json:"slug" gorm:"uniqueIndex" validate:"required,min=2,max=60,lowercase"`
	Status    string    `json:"status" gorm:"default:active" validate:"required,oneof=active suspended"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Home represents a care home belonging to a company
type Home struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	CompanyID uuid.UUID `json:"company_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Name      string    `json:"name" validate:"required,min=2,max=120"`
	Address   string    `json:"address" validate:"omitempty,max=500"`
	Capacity  int       `json:"capacity" validate:"min=0,max=500"`
	Status    string    `json:"status" gorm:"default:active" validate:"required,oneof=active archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompanyMembership links a user to a company. Bank marks bank staff: members
// of the company with no fixed home who can be placed into any of its homes.
type CompanyMembership struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	CompanyID uuid.UUID `json:"company_id" gorm:"type:uuid;index:idx_company_user,unique" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index:idx_company_user,unique" validate:"required,uuid"`
	Role      string    `json:"role" gorm:"default:member" validate:"required,oneof=owner office member"`
	Bank      bool      `json:"bank" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaffAssignment places a company member into a home with a role. DSL marks
// the home's designated safeguarding lead.
type StaffAssignment struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	CompanyID uuid.UUID  `json:"company_id" gorm:"type:uuid;index" validate:"required,uuid"`
	HomeID    uuid.UUID  `json:"home_id" gorm:"type:uuid;index" validate:"required,uuid"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Role      string     `json:"role" validate:"required,oneof=manager senior carer"`
	Position  string     `json:"position" validate:"omitempty,max=60"`
	Subrole   string     `json:"subrole" validate:"omitempty,max=60"`
	DSL       bool       `json:"dsl" gorm:"column:dsl;default:false"`
	Active    bool       `json:"active" gorm:"default:true"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Invitation is an email invite into a company, optionally into a home
type Invitation struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	CompanyID  uuid.UUID  `json:"company_id" gorm:"type:uuid;index" validate:"required,uuid"`
	HomeID     *uuid.UUID `json:"home_id" gorm:"type:uuid" validate:"omitempty,uuid"`
	Email      string     `json:"email" gorm:"index" validate:"required,email"`
	Role       string     `json:"role" validate:"required,oneof=office manager senior carer"`
	Bank       bool       `json:"bank" gorm:"default:false"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex"`
	InvitedBy  uuid.UUID  `json:"invited_by" gorm:"type:uuid" validate:"required,uuid"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Subscription is the licensing record of a company
type Subscription struct {
	ID               uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	CompanyID        uuid.UUID       `json:"company_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Plan             string          `json:"plan" gorm:"default:starter" validate:"required,oneof=starter standard premium"`
	SeatLimit        int             `json:"seat_limit" validate:"min=1"`
	PriceMonthly     decimal.Decimal `json:"price_monthly" gorm:"type:decimal(10,2)"`
	Status           string          `json:"status" gorm:"default:trialing" validate:"required,oneof=trialing active past_due canceled"`
	TrialEndsAt      time.Time       `json:"trial_ends_at"`
	CurrentPeriodEnd time.Time       `json:"current_period_end"`
	CanceledAt       *time.Time      `json:"canceled_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Notification is a per-user message, polled by clients
type Notification struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	CompanyID *uuid.UUID `json:"company_id" gorm:"type:uuid;index" validate:"omitempty,uuid"`
	Type      string     `json:"type" validate:"required,max=60"`
	Title     string     `json:"title" validate:"required,max=200"`
	Body      string     `json:"body" validate:"omitempty,max=2000"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuditEvent records a sensitive action for compliance review
type AuditEvent struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	ActorID   uuid.UUID  `json:"actor_id" gorm:"type:uuid;index" validate:"required,uuid"`
	CompanyID *uuid.UUID `json:"company_id" gorm:"type:uuid;index" validate:"omitempty,uuid"`
	Action    string     `json:"action" gorm:"index" validate:"required,max=80"`
	Severity  string     `json:"severity" gorm:"default:low" validate:"required,oneof=low medium high"`
	Metadata  string     `json:"metadata" gorm:"type:text" validate:"omitempty,json"`
	IPAddress string     `json:"ip_address" validate:"omitempty,ip"`
	UserAgent string     `json:"user_agent" validate:"omitempty,max=400"`
	CreatedAt time.Time  `json:"created_at"`
}

// StaffRoleRank orders staff roles for scope comparisons. Unknown roles rank
// lowest so malformed rows can never outrank a caller.
func StaffRoleRank(role string) int {
	switch role {
	case StaffRoleManager:
		return 3
	case StaffRoleSenior:
		return 2
	case StaffRoleCarer:
		return 1
	default:
		return 0
	}
}

// SeatLimitForPlan returns the default seat allowance of a plan.
func SeatLimitForPlan(plan string) int {
	switch plan {
	case "premium":
		return 500
	case "standard":
		return 100
	default:
		return 25
	}
}

// PriceForPlan returns the monthly list price of a plan.
func PriceForPlan(plan string) decimal.Decimal {
	switch plan {
	case "premium":
		return decimal.NewFromInt(299)
	case "standard":
		return decimal.NewFromInt(99)
	default:
		return decimal.NewFromInt(29)
	}
}
