package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

type contextKey string

const (
	ctxCustomerID contextKey = "customer_id"
	ctxRole       contextKey = "actor_role"
	ctxPartnerID  contextKey = "partner_id"
)

// CustomerIDFromContext returns the authenticated subject, or uuid.Nil.
func CustomerIDFromContext(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(ctxCustomerID).(uuid.UUID)
	return v
}

// RoleFromContext returns the actor role, or "" for anonymous requests.
func RoleFromContext(ctx context.Context) enums.ActorRole {
	v, _ := ctx.Value(ctxRole).(enums.ActorRole)
	return v
}

// PartnerIDFromContext is set only for partner staff tokens.
func PartnerIDFromContext(ctx context.Context) *uuid.UUID {
	if v, ok := ctx.Value(ctxPartnerID).(uuid.UUID); ok {
		return &v
	}
	return nil
}

func WithCustomerID(ctx context.Context, customerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxCustomerID, customerID)
}

func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	return context.WithValue(ctx, ctxRole, role)
}

func WithPartnerID(ctx context.Context, partnerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxPartnerID, partnerID)
}
