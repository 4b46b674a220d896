package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	type request struct {
		ChatID   string `validate:"required,object_id"`
		ChatType string `validate:"required,chat_type"`
		Role     string `validate:"omitempty,chat_role"`
		Content  string `validate:"omitempty,max=10"`
	}

	errs := ValidateStruct(request{
		ChatID:   "507f1f77bcf86cd799439011",
		ChatType: "group",
		Role:     "moderator",
	})
	assert.Nil(t, errs)

	errs = ValidateStruct(request{
		ChatID:   "nope",
		ChatType: "broadcast",
		Role:     "superadmin",
		Content:  "way too long for the limit",
	})
	require.Len(t, errs, 4)
	assert.Equal(t, "Must be a valid object id", errs["chatid"])
	assert.Contains(t, errs["chattype"], "Must be one of")
	assert.Contains(t, errs["role"], "Must be one of")
	assert.Contains(t, errs["content"], "at most")
}

func TestValidateStructRequired(t *testing.T) {
	type request struct {
		ChatID string `validate:"required"`
	}
	errs := ValidateStruct(request{})
	require.Len(t, errs, 1)
	assert.Equal(t, "This field is required", errs["chatid"])
}
