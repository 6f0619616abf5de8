package moonshot

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a professional medical beauty post-operative recovery assessment AI assistant, " +
	"specializing in analyzing facial symmetry, redness, swelling and other indicators."

const userPromptTemplate = `You are a professional medical beauty post-operative recovery assessment AI assistant. Please analyze based on the following information:

[Video Information]
- Video URL: %s
- Patient Description: %s

Please provide analysis results in the following JSON format (return JSON only, no other text):
{
  "summary": "Overall assessment summary (within 50 characters)",
  "symmetry": {
    "score": 85,
    "status": "normal",
    "description": "Facial symmetry assessment"
  },
  "redness": {
    "detected": false,
    "areas": [],
    "severity": "none"
  },
  "swelling": {
    "detected": false,
    "confidence": 0.92
  },
  "riskLevel": "low",
  "confidence": 0.87,
  "needReview": false
}

Notes:
1. riskLevel can only be low, medium, or high
2. severity can only be none, mild, moderate, or severe
3. symmetry.status can only be normal or abnormal, and symmetry.score is an integer between 0-100
4. confidence is a number between 0-1
5. needReview indicates whether manual review is required`

// BuildMessages renders the chat messages for one assessment request.
func BuildMessages(videoRef, note string) []openai.ChatCompletionMessage {
	note = strings.TrimSpace(note)
	if note == "" {
		note = "None"
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPromptTemplate, videoRef, note)},
	}
}
