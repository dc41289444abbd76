package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	TenantRoleOwner  = "owner"
	TenantRoleMember = "member"
)

type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null;column:slug" json:"slug"`
	CreatedBy uuid.UUID `gorm:"type:uuid;not null;index" json:"created_by"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenant"
}

type TenantMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_tenant_user" json:"tenant_id"`
	Tenant    *Tenant   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_tenant_user" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Role      string    `gorm:"column:role;not null;default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TenantMembership) TableName() string {
	return "tenant_membership"
}
