package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-image-editor-backend/internal/inference"
)

type Client struct {
	baseURL      string
	apiToken     string
	model        string
	httpClient   *http.Client
	fetcher      *inference.HTTPFetcher
	pollInterval time.Duration
}

type predictionRequest struct {
	Input map[string]interface{} `json:"input"`
}

// Prediction is the subset of the Replicate prediction object we read.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // starting, processing, succeeded, failed, canceled
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

func (p *Prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func NewClient(baseURL, apiToken, model string, timeout time.Duration, maxBytes int64) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		fetcher:      inference.NewHTTPFetcher(timeout, maxBytes).WithHeader("Authorization", "Bearer "+apiToken),
		pollInterval: time.Second,
	}
}

func (c *Client) Name() string {
	return "replicate:" + c.model
}

// Generate runs the model against the input image and returns the prediction
// output as a tagged union. It does not retry.
func (c *Client) Generate(ctx context.Context, req inference.Request) (inference.Output, error) {
	prediction, err := c.createPrediction(ctx, req)
	if err != nil {
		return inference.Output{}, err
	}

	for !prediction.terminal() {
		select {
		case <-ctx.Done():
			c.cancelPrediction(prediction)
			return inference.Output{}, fmt.Errorf("prediction %s did not finish: %w", prediction.ID, ctx.Err())
		case <-time.After(c.pollInterval):
		}

		next, err := c.getPrediction(ctx, prediction.URLs.Get)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelPrediction(prediction)
			}
			return inference.Output{}, err
		}
		prediction = next
	}

	if prediction.Status != "succeeded" {
		return inference.Output{}, fmt.Errorf("prediction %s %s: %v", prediction.ID, prediction.Status, prediction.Error)
	}

	return c.DecodeOutput(prediction.Output), nil
}

func (c *Client) createPrediction(ctx context.Context, req inference.Request) (*Prediction, error) {
	body := predictionRequest{
		Input: map[string]interface{}{
			"prompt":        req.Prompt,
			"image_input":   []string{req.ImageURL},
			"aspect_ratio":  "match_input_image",
			"output_format": "jpg",
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/models/" + c.model + "/predictions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	return c.do(httpReq)
}

func (c *Client) getPrediction(ctx context.Context, getURL string) (*Prediction, error) {
	if getURL == "" {
		return nil, fmt.Errorf("prediction has no status url")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	return c.do(httpReq)
}

// cancelPrediction is best effort; the caller has already given up.
func (c *Client) cancelPrediction(p *Prediction) {
	if p.URLs.Cancel == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URLs.Cancel, nil)
	if err != nil {
		return
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	if resp, err := c.httpClient.Do(httpReq); err == nil {
		resp.Body.Close()
	}
}

func (c *Client) do(httpReq *http.Request) (*Prediction, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("replicate request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var prediction Prediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
	}

	return &prediction, nil
}

// DecodeOutput maps a prediction output onto the inference shapes: data URIs
// are inline bytes, Replicate file API URLs need an authenticated accessor,
// anything else is a plain URL to fetch.
func (c *Client) DecodeOutput(raw json.RawMessage) inference.Output {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return c.decodeString(single, raw)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item != "" {
				return c.decodeString(item, raw)
			}
		}
		return inference.Unrecognized(string(raw))
	}

	var object struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &object); err == nil && object.URL != "" {
		return c.decodeString(object.URL, raw)
	}

	return inference.Unrecognized(string(raw))
}

func (c *Client) decodeString(s string, raw json.RawMessage) inference.Output {
	if strings.HasPrefix(s, "data:") {
		data, contentType, err := inference.DecodeDataURI(s)
		if err != nil {
			return inference.Unrecognized(string(raw))
		}
		return inference.Inline(data, contentType)
	}

	parsed, err := url.Parse(s)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return inference.Unrecognized(string(raw))
	}

	if c.isFileAPI(parsed) {
		return inference.FromAccessor(&fileAccessor{url: s, fetcher: c.fetcher}, s)
	}
	return inference.FromURL(s)
}

func (c *Client) isFileAPI(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return u.Host == base.Host && strings.Contains(u.Path, "/files/")
}

// fileAccessor reads a file served by the Replicate files API, which
// requires the API token.
type fileAccessor struct {
	url     string
	fetcher *inference.HTTPFetcher
}

func (a *fileAccessor) Bytes(ctx context.Context) ([]byte, string, error) {
	return a.fetcher.Fetch(ctx, a.url)
}
