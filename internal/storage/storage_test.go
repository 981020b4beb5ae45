package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEntity(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"memory_usage", true},
		{"_private", true},
		{"load_average2", true},
		{"", false},
		{"2fast", false},
		{"drop table", false},
		{"a;b", false},
		{"../etc", false},
	}

	for _, tt := range tests {
		err := ValidateEntity(tt.name)
		if tt.valid {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidEntity, tt.name)
		}
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("put", "cpu", nil))

	base := errors.New("disk full")
	err := Wrap("put", "cpu", base)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "put", se.Op)
	assert.Equal(t, "cpu", se.Sensor)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "storage put cpu: disk full", err.Error())

	assert.Same(t, err, Wrap("get", "other", err))
}

func TestParams(t *testing.T) {
	params := map[string]string{"path": "/tmp/x", "path_style": "yes"}

	v, err := Param(params, "path")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", v)

	_, err = Param(params, "bucket")
	assert.ErrorIs(t, err, ErrMissingParam)

	assert.Equal(t, "public", ParamDefault(params, "schema", "public"))

	b, err := ParamBool(params, "missing", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = ParamBool(params, "path_style", false)
	assert.Error(t, err)
}
