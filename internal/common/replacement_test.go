package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestReplaceKeyReferences(t *testing.T) {
	logger := arbor.NewLogger()
	kv := map[string]string{"api-key": "sk-123", "user": "bob"}

	assert.Equal(t, "sk-123", ReplaceKeyReferences("{api-key}", kv, logger))
	assert.Equal(t, "bob:sk-123", ReplaceKeyReferences("{user}:{api-key}", kv, logger))
	assert.Equal(t, "{missing}", ReplaceKeyReferences("{missing}", kv, logger))
	assert.Equal(t, "plain", ReplaceKeyReferences("plain", kv, logger))
	assert.Equal(t, "", ReplaceKeyReferences("", kv, logger))
}

func TestReplaceInStruct(t *testing.T) {
	type inner struct {
		Token string
	}
	type sample struct {
		Name    string
		Tags    []string
		Headers map[string]string
		Nested  inner
		Ptr     *inner
		Count   int
		hidden  string
	}

	logger := arbor.NewLogger()
	kv := map[string]string{"k": "v"}
	s := &sample{
		Name:    "{k}",
		Tags:    []string{"a", "{k}"},
		Headers: map[string]string{"x": "{k}"},
		Nested:  inner{Token: "{k}"},
		Ptr:     &inner{Token: "{k}"},
		Count:   3,
		hidden:  "{k}",
	}

	require.NoError(t, ReplaceInStruct(s, kv, logger))

	assert.Equal(t, "v", s.Name)
	assert.Equal(t, []string{"a", "v"}, s.Tags)
	assert.Equal(t, "v", s.Headers["x"])
	assert.Equal(t, "v", s.Nested.Token)
	assert.Equal(t, "v", s.Ptr.Token)
	assert.Equal(t, "{k}", s.hidden)
}

func TestReplaceInStruct_RejectsNonPointer(t *testing.T) {
	assert.Error(t, ReplaceInStruct(struct{}{}, nil, arbor.NewLogger()))
	var nilPtr *struct{}
	assert.Error(t, ReplaceInStruct(nilPtr, nil, arbor.NewLogger()))
}
