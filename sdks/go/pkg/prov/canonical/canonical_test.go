package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claims struct {
	URL         string `json:"url"`
	Timestamp   int64  `json:"timestamp"`
	ContentHash string `json:"contentHash"`
	IAT         int64  `json:"iat"`
	EXP         int64  `json:"exp"`
}

func TestMarshal_KeyOrder(t *testing.T) {
	b, err := Marshal(claims{URL: "https://example.com", Timestamp: 1, ContentHash: "ab", IAT: 2, EXP: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"contentHash":"ab","exp":3,"iat":2,"timestamp":1,"url":"https://example.com"}`, string(b))
}

func TestMarshal_MapAndStructAgree(t *testing.T) {
	fromStruct, err := Marshal(claims{URL: "u", Timestamp: 10, ContentHash: "h", IAT: 20, EXP: 30})
	require.NoError(t, err)
	fromMap, err := Marshal(map[string]any{"exp": 30, "iat": 20, "url": "u", "timestamp": 10, "contentHash": "h"})
	require.NoError(t, err)
	assert.Equal(t, fromStruct, fromMap)
}

func TestMarshal_Deterministic(t *testing.T) {
	in := map[string]any{"alg": "HS256", "typ": "JWT"}
	first, err := Marshal(in)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `{"alg":"HS256","typ":"JWT"}`, string(first))
}

func TestMarshal_Unsupported(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
