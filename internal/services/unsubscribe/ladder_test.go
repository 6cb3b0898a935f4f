package unsubscribe

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
)

// countingExecutor records calls and answers from a per-URL script
type countingExecutor struct {
	mu      sync.Mutex
	calls   []string
	succeed map[string]bool
	panics  map[string]bool
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{succeed: map[string]bool{}, panics: map[string]bool{}}
}

func (c *countingExecutor) Execute(_ context.Context, _ *models.Email, candidate models.ValidatedCandidate) models.ExecutionAttempt {
	c.mu.Lock()
	c.calls = append(c.calls, candidate.URL)
	c.mu.Unlock()

	if c.panics[candidate.URL] {
		panic("boom")
	}
	attempt := models.ExecutionAttempt{Candidate: candidate, Success: c.succeed[candidate.URL]}
	if !attempt.Success {
		attempt.Error = "failed"
	}
	return attempt
}

func (c *countingExecutor) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func allMethods(exec interfaces.MechanismExecutor) map[models.Method]interfaces.MechanismExecutor {
	return map[models.Method]interfaces.MechanismExecutor{
		models.MethodHTTPGet:     exec,
		models.MethodHTTPPost:    exec,
		models.MethodBrowserLink: exec,
	}
}

func validated(method models.Method, url string) models.ValidatedCandidate {
	c := models.Candidate{URL: url, Method: method}
	return models.ValidatedCandidate{Candidate: c, Key: DedupKey(c)}
}

func TestLadder_NoCandidates(t *testing.T) {
	exec := newCountingExecutor()
	ladder := NewLadder(allMethods(exec), arbor.NewLogger())

	for _, simulate := range []bool{true, false} {
		outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, nil, simulate)

		assert.False(t, outcome.Success)
		assert.Equal(t, models.ReasonNoMechanism, outcome.Reason)
		assert.Empty(t, outcome.Attempts)
	}
	assert.Zero(t, exec.Calls())
}

func TestLadder_SimulateNeverInvokesExecutors(t *testing.T) {
	exec := newCountingExecutor()
	ladder := NewLadder(allMethods(exec), arbor.NewLogger())
	candidates := []models.ValidatedCandidate{
		validated(models.MethodHTTPGet, "https://a.example/u"),
		validated(models.MethodBrowserLink, "https://a.example/web"),
	}

	outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, candidates, true)

	assert.True(t, outcome.Success)
	assert.True(t, outcome.Simulated)
	assert.Equal(t, candidates, outcome.Candidates)
	assert.Empty(t, outcome.Attempts)
	assert.Zero(t, exec.Calls())
}

func TestLadder_ThirdCandidateWins(t *testing.T) {
	exec := newCountingExecutor()
	exec.succeed["https://c.example/u"] = true
	ladder := NewLadder(allMethods(exec), arbor.NewLogger())
	candidates := []models.ValidatedCandidate{
		validated(models.MethodHTTPGet, "https://a.example/u"),
		validated(models.MethodHTTPPost, "https://b.example/u"),
		validated(models.MethodBrowserLink, "https://c.example/u"),
	}

	outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, candidates, false)

	assert.True(t, outcome.Success)
	assert.Equal(t, models.MethodBrowserLink, outcome.MethodUsed)
	require.Len(t, outcome.Attempts, 3)
	for i, attempt := range outcome.Attempts {
		assert.Equal(t, candidates[i].URL, attempt.Candidate.URL)
	}
	assert.Empty(t, outcome.Reason)
}

func TestLadder_StopsAtFirstSuccess(t *testing.T) {
	exec := newCountingExecutor()
	exec.succeed["https://a.example/u"] = true
	ladder := NewLadder(allMethods(exec), arbor.NewLogger())

	outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, []models.ValidatedCandidate{
		validated(models.MethodHTTPGet, "https://a.example/u"),
		validated(models.MethodHTTPGet, "https://b.example/u"),
	}, false)

	assert.True(t, outcome.Success)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, 1, exec.Calls())
}

func TestLadder_AllFailKeepsTrail(t *testing.T) {
	exec := newCountingExecutor()
	exec.panics["https://b.example/u"] = true
	ladder := NewLadder(map[models.Method]interfaces.MechanismExecutor{
		models.MethodHTTPGet:  exec,
		models.MethodHTTPPost: exec,
	}, arbor.NewLogger())

	outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, []models.ValidatedCandidate{
		validated(models.MethodHTTPGet, "https://a.example/u"),
		validated(models.MethodHTTPPost, "https://b.example/u"),
		validated(models.MethodBrowserLink, "https://c.example/u"),
	}, false)

	assert.False(t, outcome.Success)
	assert.Equal(t, models.ReasonAllAttempts, outcome.Reason)
	require.Len(t, outcome.Attempts, 3)
	assert.Contains(t, outcome.Attempts[1].Error, "panic")
	assert.Contains(t, outcome.Attempts[2].Error, "no executor registered")
	assert.Equal(t, "https://c.example/u", outcome.Attempts[2].Candidate.URL)
}

func TestLadder_MissingExecutorAttemptIsTimed(t *testing.T) {
	ladder := NewLadder(map[models.Method]interfaces.MechanismExecutor{}, arbor.NewLogger())

	outcome := ladder.Run(context.Background(), &models.Email{ID: "e"}, []models.ValidatedCandidate{
		validated(models.MethodBrowserLink, "https://c.example/u"),
	}, false)

	require.Len(t, outcome.Attempts, 1)
	attempt := outcome.Attempts[0]
	assert.Contains(t, attempt.Error, "no executor registered")
	assert.False(t, attempt.StartedAt.IsZero())
	assert.NotZero(t, attempt.Duration)
}
