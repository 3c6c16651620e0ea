package domain

import (
	"context"

	"pharmstock/internal/core/id"
)

// AuditAction represents the type of audited operation.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// AuditLogger records who changed which record and how. Bills and payments
// log every mutation; payments are editable but never deletable, so the log
// is their full history.
type AuditLogger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes map[string]any) error
}

// NopAuditLogger discards entries. Used in tests.
type NopAuditLogger struct{}

func (NopAuditLogger) LogChange(context.Context, string, id.ID, AuditAction, map[string]any) error {
	return nil
}
