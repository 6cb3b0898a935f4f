package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Provider() string { return "claude" }

func (m *mockLLM) Close() error { return nil }

func email() *models.Email {
	return &models.Email{ID: "e1", From: "deals@shop.example", Subject: "Flash sale", Snippet: "Up to 70% off"}
}

func TestAIClassifier_ParsesFencedJSON(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []interfaces.Message) bool {
		return len(msgs) == 2 && msgs[0].Role == "system" && msgs[1].Role == "user"
	})).Return("```json\n{\"isMarketing\": true, \"confidence\": 1.4, \"reason\": \"promo\", \"shouldUnsubscribe\": true}\n```", nil)

	result, err := NewAIClassifier(llm, arbor.NewLogger()).Classify(context.Background(), email())
	require.NoError(t, err)

	assert.True(t, result.IsMarketing)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, "promo", result.Reason)
	assert.True(t, result.ShouldUnsubscribe)
	assert.Equal(t, "ai:claude", result.Classifier)
	llm.AssertExpectations(t)
}

func TestAIClassifier_FallsBackOnError(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("401 unauthorized"))

	result, err := NewAIClassifier(llm, arbor.NewLogger()).Classify(context.Background(), email())
	require.NoError(t, err)

	assert.False(t, result.IsMarketing)
	assert.False(t, result.ShouldUnsubscribe)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, aiFailedReason, result.Reason)
}

func TestAIClassifier_FallsBackOnGarbage(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Chat", mock.Anything, mock.Anything).Return("I think it is marketing.", nil)

	result, err := NewAIClassifier(llm, arbor.NewLogger()).Classify(context.Background(), email())
	require.NoError(t, err)

	assert.Equal(t, aiFailedReason, result.Reason)
	assert.False(t, result.ShouldUnsubscribe)
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict(`Sure! {"isMarketing": false, "confidence": 0.2, "reason": "personal", "shouldUnsubscribe": false} Hope that helps.`)
	require.NoError(t, err)
	assert.False(t, v.IsMarketing)
	assert.Equal(t, 0.2, v.Confidence)

	_, err = parseVerdict("{not json}")
	assert.Error(t, err)
}
