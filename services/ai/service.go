package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	"github.com/stopthephish/phishwatch/internal/tracing"
)

const systemPrompt = `You are an email security analyst. Analyze the email below and decide whether it is a phishing attempt.
Respond with a JSON object only, no prose, with exactly these fields:
{"classification": "phishing" or "legitimate", "reason": "<one sentence>", "advice": "<one sentence for the recipient>"}`

type aiService struct {
	cfg    *config.ClassifierConfig
	client *http.Client
}

func NewAIService(cfg *config.ClassifierConfig) interfaces.AIService {
	return &aiService{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *aiService) ClassifyEmail(ctx context.Context, email *dto.EmailMessage) (*dto.ClassificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.ClassifyEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagMessageUID(span, email.UID)

	payload, err := json.Marshal(chatRequest{
		Model:       s.cfg.Model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: email.ClassifierText()},
		},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Endpoint, bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("classifier request failed with status code %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	if len(response.Choices) == 0 {
		err := errors.New("classifier response contains no choices")
		tracing.TraceErr(span, err)
		return nil, err
	}

	result, err := parseVerdict(response.Choices[0].Message.Content)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "result", result)

	return result, nil
}

// parseVerdict extracts the verdict JSON from the model output, tolerating
// markdown code fences around it.
func parseVerdict(content string) (*dto.ClassificationResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result dto.ClassificationResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, errors.Wrapf(err, "classifier returned malformed verdict: %s", content)
	}

	switch result.Classification {
	case enum.VerdictPhishing, enum.VerdictLegitimate:
		return &result, nil
	default:
		return nil, errors.Errorf("classifier returned unknown classification %q", result.Classification)
	}
}
