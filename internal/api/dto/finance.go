package dto

import (
	"github.com/cloudfin/finance/internal/types"
	"github.com/cloudfin/finance/internal/validator"
)

// UserRef identifies a user within an identity provider
type UserRef struct {
	UserID   string `json:"user_id" validate:"required"`
	Provider string `json:"provider" validate:"required"`
}

func (r *UserRef) Validate() error {
	return validator.ValidateRequest(r)
}

type AuthorizationRequest struct {
	UserRef
	Operation types.Operation `json:"operation"`
}

func (r *AuthorizationRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type AuthorizationResponse struct {
	Authorized bool `json:"authorized"`
}

type AddUserRequest struct {
	UserRef
	Plugin types.PluginKind `json:"plugin" validate:"required,plugin_kind"`
}

func (r *AddUserRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type FinanceStateRequest struct {
	UserRef
	Property string `json:"property" validate:"required"`
}

func (r *FinanceStateRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type FinanceStateResponse struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Property string `json:"property"`
	Value    string `json:"value"`
}

type UpdateFinanceStateRequest struct {
	UserRef
	State map[string]string `json:"state" validate:"required,min=1"`
}

func (r *UpdateFinanceStateRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ChangeOptionsRequest struct {
	UserRef
	Options map[string]string `json:"options" validate:"required,min=1"`
}

func (r *ChangeOptionsRequest) Validate() error {
	return validator.ValidateRequest(r)
}
