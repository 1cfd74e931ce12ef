package translate

import (
	"encoding/base64"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
)

func TestContentBlocksToPromptLineTextOnly(t *testing.T) {
	blocks := []acp.ContentBlock{
		{Text: &acp.TextContent{Text: "hello there"}},
	}
	line, err := ContentBlocksToPromptLine(blocks)
	require.NoError(t, err)
	assert.Equal(t, "user", line.Message.Role)
}

func TestContentBlocksToPromptLineRejectsInvalidBase64(t *testing.T) {
	blocks := []acp.ContentBlock{
		{Image: &acp.ImageContent{Data: "not-valid-base64!!", MimeType: "image/png"}},
	}
	_, err := ContentBlocksToPromptLine(blocks)
	assert.Error(t, err)
}

func TestContentBlocksToPromptLineAcceptsValidBase64Image(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))
	blocks := []acp.ContentBlock{
		{Image: &acp.ImageContent{Data: data, MimeType: "image/png"}},
	}
	_, err := ContentBlocksToPromptLine(blocks)
	assert.NoError(t, err)
}

func TestContentBlocksToPromptLineEmptyIsError(t *testing.T) {
	_, err := ContentBlocksToPromptLine(nil)
	assert.Error(t, err)
}

func TestAssistantBlocksNilMessageIsEmpty(t *testing.T) {
	updates := AssistantBlocks(&claudeproc.Message{Type: claudeproc.TypeAssistant})
	assert.Empty(t, updates)
}
