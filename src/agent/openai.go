package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// OpenAIAgent calls an OpenAI-compatible chat-completions endpoint with a
// JSON response format.
type OpenAIAgent struct {
	http *resty.Client
}

func NewOpenAIAgent() *OpenAIAgent {
	config := GetConfig()

	httpClient := resty.New().
		SetBaseURL(config.AgentBaseURL).
		SetTimeout(config.AgentTimeout).
		SetAuthToken(config.AgentAPIKey).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &OpenAIAgent{http: httpClient}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *OpenAIAgent) Decide(ctx context.Context, req Request) (*Response, error) {
	snapshotJSON, err := json.Marshal(req.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: string(snapshotJSON)},
		},
	}
	body.ResponseFormat.Type = "json_object"

	prompt, _ := json.Marshal(body.Messages)

	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable agent response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("agent error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("agent HTTP %d", resp.StatusCode())
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("agent returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	response := &Response{
		RawPrompt:   string(prompt),
		RawResponse: content,
	}

	decision, err := DecodeDecision([]byte(content))
	if err != nil {
		// Schema failure is "no decision", not a pipeline error.
		logger.WithError(err).WithField("model", req.Model).
			Warn("agent response failed schema validation, treating as no decision")
		return response, nil
	}

	response.Decision = decision
	return response, nil
}
