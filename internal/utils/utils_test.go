package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-jobboard-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	sent := true
	require.True(t, utils.Value(&sent))
	require.False(t, utils.Value[bool](nil))
}

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"body", "email"}, utils.ToStringSlice([]any{"body", float64(0), "email", nil}))
	require.Empty(t, utils.ToStringSlice(nil))
}
