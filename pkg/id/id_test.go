package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestReference(t *testing.T) {
	ref := Reference("stl")
	assert.True(t, strings.HasPrefix(ref, "STL-"))
	assert.Len(t, ref, len("STL-")+12)
	assert.NotEqual(t, ref, Reference("stl"))
}

func TestIsValidUUID(t *testing.T) {
	_, err := IsValidUUID(uuid.NewString())
	assert.NoError(t, err)

	_, err = IsValidUUID("not-a-uuid")
	assert.Error(t, err)
}
