package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Judge scores a free-text answer for the parallel-tracks phase. It is a
// black box that may be slow or fail; callers never mutate room state on a
// judge error, and the step guard in the tracks engine discards verdicts
// that arrive after the step already advanced.
type Judge interface {
	JudgeAnswer(ctx context.Context, topic string, step int, answer string) (bool, error)
}

// HTTPJudge calls an external judge endpoint.
type HTTPJudge struct {
	url    string
	client *http.Client
}

func NewHTTPJudge(url string) *HTTPJudge {
	return &HTTPJudge{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type judgeRequest struct {
	Topic  string `json:"topic"`
	Step   int    `json:"step"`
	Answer string `json:"answer"`
}

type judgeResponse struct {
	Correct bool `json:"correct"`
}

// LenientJudge accepts any non-empty answer. Used in development when no
// judge endpoint is configured.
type LenientJudge struct{}

func (LenientJudge) JudgeAnswer(_ context.Context, _ string, _ int, answer string) (bool, error) {
	return strings.TrimSpace(answer) != "", nil
}

func (j *HTTPJudge) JudgeAnswer(ctx context.Context, topic string, step int, answer string) (bool, error) {
	body, err := json.Marshal(judgeRequest{Topic: topic, Step: step, Answer: answer})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("judge call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("judge call: unexpected status %d", resp.StatusCode)
	}

	var verdict judgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("judge call: %w", err)
	}
	return verdict.Correct, nil
}
