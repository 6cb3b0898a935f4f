package classifier

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/interfaces"
)

// New returns the classifier selected by [classifier] mode.
// llm is only required for "ai" mode.
func New(cfg common.ClassifierConfig, llm interfaces.LLMService, logger arbor.ILogger) (interfaces.Classifier, error) {
	switch cfg.Mode {
	case "rules", "":
		return NewRuleClassifier(nil, logger), nil
	case "ai":
		if llm == nil {
			return nil, fmt.Errorf("ai classifier requires an LLM service")
		}
		return NewAIClassifier(llm, logger), nil
	default:
		return nil, fmt.Errorf("unsupported classifier mode: %s", cfg.Mode)
	}
}
