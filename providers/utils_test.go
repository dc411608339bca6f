package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentkit-go/agentkit/llm"
)

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req-model", ChooseModel(&llm.ChatRequest{Model: "req-model"}, "cfg", "fb"))
	assert.Equal(t, "cfg", ChooseModel(&llm.ChatRequest{}, "cfg", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}

func TestChooseMaxTokens(t *testing.T) {
	assert.Equal(t, 256, ChooseMaxTokens(&llm.ChatRequest{MaxTokens: 256}, 4096))
	assert.Equal(t, 4096, ChooseMaxTokens(nil, 4096))
}

func TestChooseTimeout(t *testing.T) {
	assert.Equal(t, time.Second, ChooseTimeout(&llm.ChatRequest{Timeout: time.Second}, time.Minute, time.Hour))
	assert.Equal(t, time.Minute, ChooseTimeout(nil, time.Minute, time.Hour))
	assert.Equal(t, time.Hour, ChooseTimeout(nil, 0, time.Hour))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://api.test/v1/chat", JoinURL("https://api.test/", "/v1/chat"))
	assert.Equal(t, "https://api.test/v1/chat", JoinURL("https://api.test", "v1/chat"))
}
