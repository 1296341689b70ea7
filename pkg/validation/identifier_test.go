package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/validation"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"id", "userId", "_private", "order_items", "A1"}
	for _, name := range valid {
		assert.NoError(t, validation.ValidateIdentifier(name), name)
	}

	invalid := []string{"", "1abc", "user-id", "name`; DROP", "a b", "tab\tname", strings.Repeat("x", 301)}
	for _, name := range invalid {
		err := validation.ValidateIdentifier(name)
		assert.Error(t, err, name)
		assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)
		assert.True(t, errors.IsConfiguration(err))
	}
}

func TestSecurityErrorHidesIdentifier(t *testing.T) {
	err := validation.ValidateIdentifier("secret`name")
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestValidateFieldPath(t *testing.T) {
	assert.NoError(t, validation.ValidateFieldPath("orders.amount"))
	assert.Error(t, validation.ValidateFieldPath("orders..amount"))
	assert.Error(t, validation.ValidateFieldPath(strings.Repeat("a.", 16)+"a"))
}

func TestValidateProject(t *testing.T) {
	assert.NoError(t, validation.ValidateProject(""))
	assert.NoError(t, validation.ValidateProject("my-project-123"))
	assert.NoError(t, validation.ValidateProject("example.com:analytics"))
	assert.Error(t, validation.ValidateProject("Bad_Project"))
}
