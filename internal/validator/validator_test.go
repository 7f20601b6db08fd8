package validator

import (
	"testing"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	UserID   string           `validate:"required"`
	Provider string           `validate:"required"`
	Plugin   types.PluginKind `validate:"omitempty,plugin_kind"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sampleRequest{UserID: "u", Provider: "p"}))

	err := ValidateRequest(&sampleRequest{UserID: "u"})
	assert.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestValidateRequest_PluginKind(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sampleRequest{UserID: "u", Provider: "p", Plugin: types.PluginKindPostpaid}))

	err := ValidateRequest(&sampleRequest{UserID: "u", Provider: "p", Plugin: "barter"})
	assert.True(t, ierr.IsValidation(err))
}
