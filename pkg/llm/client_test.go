package llm

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessagesClient struct {
	calls    int
	fail     int
	failErr  error
	response *sdk.Message
}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, f.failErr
	}
	return f.response, nil
}

func newTestMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}},
		Model:   "claude-test",
		Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestComplete_SuccessFirstTry(t *testing.T) {
	fake := &fakeMessagesClient{response: newTestMessage("hello")}
	c := &Client{msg: fake, defaultModel: "claude-test"}

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, 1, fake.calls)
}

func TestComplete_RejectsEmptyMessages(t *testing.T) {
	c := &Client{msg: &fakeMessagesClient{}, defaultModel: "claude-test"}
	_, err := c.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	fake := &fakeMessagesClient{fail: 1, failErr: &RateLimitError{Err: errors.New("429")}, response: newTestMessage("ok")}
	c := &Client{msg: fake, defaultModel: "claude-test"}

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, fake.calls)
}

func TestComplete_GivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeMessagesClient{fail: 99, failErr: &UnavailableError{Err: errors.New("503")}}
	c := &Client{msg: fake, defaultModel: "claude-test"}

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
	assert.Equal(t, maxAttempts, fake.calls)
}

func TestComplete_NonTransientDoesNotRetry(t *testing.T) {
	fake := &fakeMessagesClient{fail: 99, failErr: errors.New("boom")}
	c := &Client{msg: fake, defaultModel: "claude-test"}

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestExtractText_NilResponse(t *testing.T) {
	assert.Equal(t, "", ExtractText(nil))
}
