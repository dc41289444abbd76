package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AgentRoleUser      = "user"
	AgentRoleAssistant = "assistant"
	AgentRoleTool      = "tool"
)

type AgentSession struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant        *Tenant   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string    `gorm:"column:title" json:"title"`
	MemorySummary string    `gorm:"column:memory_summary" json:"memory_summary"`
	MessageCount  int       `gorm:"column:message_count;not null;default:0" json:"message_count"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AgentSession) TableName() string {
	return "agent_session"
}

type AgentMessage struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session     *AgentSession  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Role        string         `gorm:"column:role;not null" json:"role"`
	Content     string         `gorm:"column:content" json:"content"`
	ToolName    string         `gorm:"column:tool_name" json:"tool_name,omitempty"`
	ToolPayload datatypes.JSON `gorm:"column:tool_payload;type:jsonb" json:"tool_payload,omitempty"`
	Seq         int            `gorm:"column:seq;not null" json:"seq"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (AgentMessage) TableName() string {
	return "agent_message"
}
