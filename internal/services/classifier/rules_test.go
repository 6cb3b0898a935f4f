package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

func TestRuleClassifier_Scores(t *testing.T) {
	tests := []struct {
		name          string
		email         models.Email
		confidence    float64
		isMarketing   bool
		unsubscribe   bool
		reasonContain string
	}{
		{
			name:          "nothing",
			email:         models.Email{From: "alice@example.org", Subject: "Lunch?", Body: "See you at noon"},
			reasonContain: "No marketing indicators found",
		},
		{
			name:          "keywords only",
			email:         models.Email{From: "alice@example.org", Subject: "Big SALE this weekend"},
			confidence:    0.4,
			reasonContain: "Contains marketing keywords",
		},
		{
			name:          "sender and header",
			email:         models.Email{From: "Shop <noreply@shop.example>", Subject: "Hello", ListUnsubscribe: "<https://shop.example/u>"},
			confidence:    0.6,
			isMarketing:   true,
			unsubscribe:   true,
			reasonContain: "Sender matches marketing pattern; Has unsubscribe header",
		},
		{
			name:        "keywords and header",
			email:       models.Email{From: "news@shop.example", Subject: "Weekly newsletter", HasListUnsubscribePost: true},
			confidence:  0.7,
			isMarketing: true,
			unsubscribe: true,
		},
		{
			name: "everything",
			email: models.Email{
				From: "deals@shop.example", Subject: "Discount inside",
				ListUnsubscribe: "<mailto:u@shop.example>",
			},
			confidence:  1,
			isMarketing: true,
			unsubscribe: true,
		},
		{
			name:        "html only body",
			email:       models.Email{From: "alice@example.org", Subject: "Hi", HTMLBody: "<p>Manage <b>email preferences</b></p>", ListUnsubscribe: "<https://x.example/u>"},
			confidence:  0.7,
			isMarketing: true,
			unsubscribe: true,
		},
	}

	c := NewRuleClassifier(nil, arbor.NewLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := tt.email
			result, err := c.Classify(context.Background(), &email)
			require.NoError(t, err)

			assert.InDelta(t, tt.confidence, result.Confidence, 1e-9)
			assert.Equal(t, tt.isMarketing, result.IsMarketing)
			assert.Equal(t, tt.unsubscribe, result.ShouldUnsubscribe)
			assert.Equal(t, "rules", result.Classifier)
			if tt.reasonContain != "" {
				assert.Contains(t, result.Reason, tt.reasonContain)
			}
		})
	}
}

func TestRuleClassifier_CustomRules(t *testing.T) {
	rules := []Rule{{Name: "header", Kind: RuleHeader, Weight: 0.5, Reason: "header"}}
	c := NewRuleClassifier(rules, arbor.NewLogger())

	result, err := c.Classify(context.Background(), &models.Email{ListUnsubscribe: "<https://x.example/u>"})
	require.NoError(t, err)

	assert.True(t, result.IsMarketing)
	assert.False(t, result.ShouldUnsubscribe)
}

func TestNew_SelectsMode(t *testing.T) {
	logger := arbor.NewLogger()

	c, err := New(common.ClassifierConfig{Mode: "rules"}, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "rules", c.Name())

	_, err = New(common.ClassifierConfig{Mode: "ai"}, nil, logger)
	assert.Error(t, err)

	_, err = New(common.ClassifierConfig{Mode: "tarot"}, nil, logger)
	assert.Error(t, err)
}
