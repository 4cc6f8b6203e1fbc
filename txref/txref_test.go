package txref

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaspay/kaspay/types"
)

var kaspaID = strings.Repeat("ab12", 16) // 64 hex chars

func TestNormalizeYieldsSameIDForAllObservedShapes(t *testing.T) {
	shapes := []any{
		kaspaID,
		`%7B%22id%22%3A%22` + kaspaID + `%22%7D`, // url-encoded {"id":"..."}
		map[string]any{"txid": kaspaID},
	}

	for _, raw := range shapes {
		got, err := Normalize(raw, types.MethodKaspa)
		require.NoError(t, err, "shape %T %v", raw, raw)
		assert.Equal(t, kaspaID, got)
	}
}

func TestNormalizeObjectKeyPriority(t *testing.T) {
	other := strings.Repeat("c", 64)
	got, err := Normalize(map[string]any{
		"hash": other,
		"id":   kaspaID, // id wins over hash
	}, types.MethodKaspa)
	require.NoError(t, err)
	assert.Equal(t, kaspaID, got)
}

func TestNormalizeJSONString(t *testing.T) {
	got, err := Normalize(`{"txId":"`+kaspaID+`"}`, types.MethodKaspa)
	require.NoError(t, err)
	assert.Equal(t, kaspaID, got)
}

func TestNormalizeEVMHash(t *testing.T) {
	hash := "0x" + strings.Repeat("9f", 32)
	got, err := Normalize(hash, types.MethodEVM)
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestNormalizeRejectsMalformedReferences(t *testing.T) {
	cases := []struct {
		name   string
		raw    any
		method types.Method
	}{
		{"empty string", "", types.MethodKaspa},
		{"nil", nil, types.MethodKaspa},
		{"short hex", "abc123", types.MethodKaspa},
		{"missing 0x prefix", strings.Repeat("9f", 32), types.MethodEVM},
		{"object without id", map[string]any{"status": "ok"}, types.MethodKaspa},
		{"non-string id", map[string]any{"id": 42}, types.MethodKaspa},
		{"unexpected type", 12.5, types.MethodKaspa},
		{"evm id on kaspa", "0x" + strings.Repeat("9f", 32), types.MethodKaspa},
	}

	for _, tc := range cases {
		_, err := Normalize(tc.raw, tc.method)
		require.Error(t, err, tc.name)
		assert.Equal(t, types.ErrMalformedTxRef, types.CodeOf(err), tc.name)
	}
}
