package claudeproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssistantBodyContentBlocksParsesArray(t *testing.T) {
	body := AssistantBody{Content: []byte(`[{"type":"text","text":"hi"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a"}}]`)}
	blocks := body.ContentBlocks()
	if assert.Len(t, blocks, 2) {
		assert.Equal(t, "text", blocks[0].Type)
		assert.Equal(t, "hi", blocks[0].Text)
		assert.Equal(t, "tool_use", blocks[1].Type)
		assert.Equal(t, "Read", blocks[1].Name)
	}
}

func TestAssistantBodyContentStringParsesPlainString(t *testing.T) {
	body := AssistantBody{Content: []byte(`"plain echoed prompt"`)}
	assert.Equal(t, "plain echoed prompt", body.ContentString())
	assert.Nil(t, body.ContentBlocks())
}

func TestAssistantBodyContentEmptyIsZeroValue(t *testing.T) {
	var body AssistantBody
	assert.Nil(t, body.ContentBlocks())
	assert.Equal(t, "", body.ContentString())
}

func TestMessageResultDataParsesStructuredResult(t *testing.T) {
	msg := Message{Result: []byte(`{"text":"done","session_id":"sess_1"}`)}
	data := msg.ResultData()
	if assert.NotNil(t, data) {
		assert.Equal(t, "done", data.Text)
		assert.Equal(t, "sess_1", data.SessionID)
	}
	assert.Equal(t, "", msg.ResultString())
}

func TestMessageResultStringParsesBareErrorString(t *testing.T) {
	msg := Message{Result: []byte(`"something went wrong"`)}
	assert.Equal(t, "something went wrong", msg.ResultString())
	assert.Nil(t, msg.ResultData())
}

func TestMessageResultEmptyIsNil(t *testing.T) {
	var msg Message
	assert.Nil(t, msg.ResultData())
	assert.Equal(t, "", msg.ResultString())
}
