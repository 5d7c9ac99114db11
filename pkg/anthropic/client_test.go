package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "{\"official_website\": "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "null}"},
		},
	}
	assert.Equal(t, "{\"official_website\": null}", resp.Text())
}

func TestMessageResponse_Text_Empty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Equal(t, "", resp.Text())
}
