package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("call", "c-123_abc"))
	assert.Error(t, ValidateID("call", ""))
	assert.Error(t, ValidateID("call", "has spaces"))
	assert.Error(t, ValidateID("call", strings.Repeat("a", 101)))
}

func TestValidateCallType(t *testing.T) {
	assert.NoError(t, ValidateCallType("voice"))
	assert.NoError(t, ValidateCallType("video"))
	assert.Error(t, ValidateCallType("hologram"))
	assert.Error(t, ValidateCallType(""))
}
