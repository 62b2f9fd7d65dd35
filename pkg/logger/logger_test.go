package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	merged := Merge(Fields{ReferenceKey: "ref-1", "a": 1}, WithError(errors.New("boom")), Fields{"a": 2})

	assert.Equal(t, "ref-1", merged[ReferenceKey])
	assert.Equal(t, "boom", merged[ErrorKey])
	assert.Equal(t, 2, merged["a"])
}

func TestGetZapFields(t *testing.T) {
	assert.Nil(t, getZapFields(nil))
	assert.Len(t, getZapFields([]Fields{{"a": 1}, {"b": 2}}), 2)
}
