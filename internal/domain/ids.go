// Package domain contains entity types without logic, just meta-data.
package domain

// TenantID identifies an isolated customer scope. Valid ids are positive.
type TenantID int64

// UserID identifies a user within its tenant.
type UserID int64

// ConversationID identifies a conversation within its tenant.
type ConversationID int64

func (t TenantID) Valid() bool { return t > 0 }

func (c ConversationID) Valid() bool { return c > 0 }
