package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// AccessTokenPayload is what the identity provider knows when minting a token.
// PartnerID is set only for partner staff.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	Role      enums.ActorRole
	PartnerID *uuid.UUID
	JTI       string
}

// AccessTokenClaims is the typed JWT body. SubjectID is the customer id for
// customer tokens.
type AccessTokenClaims struct {
	SubjectID uuid.UUID       `json:"sub_id"`
	Role      enums.ActorRole `json:"role"`
	PartnerID *uuid.UUID      `json:"partner_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass. The jwt parser calls it
// through jwt.ClaimsValidator.
func (c AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if c.SubjectID == uuid.Nil {
		return errors.New("token has no subject")
	}
	if c.Role == enums.ActorRolePartner && c.PartnerID == nil {
		return errors.New("partner token has no partner id")
	}
	return nil
}
