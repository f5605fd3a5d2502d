package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/tidwall/gjson"
)

// Backend paths.
const (
	HealthPath = "/health"
	RunsPath   = "/runs"
)

// Run modes.
const (
	ModeSync   = "sync"
	ModeStream = "stream"
)

// Part is one content fragment of a message.
type Part struct {
	Content string `json:"content"`
}

// InputItem is one message sent to the agent.
type InputItem struct {
	Parts []Part `json:"parts"`
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	AgentName string      `json:"agent_name"`
	Input     []InputItem `json:"input"`
	Mode      string      `json:"mode"`
}

// NewRunRequest builds a request carrying a single text part.
func NewRunRequest(agentName, text, mode string) RunRequest {
	return RunRequest{
		AgentName: agentName,
		Input: []InputItem{
			{Parts: []Part{{Content: text}}},
		},
		Mode: mode,
	}
}

// Step is one entry of the agent's execution trace. Every field is optional.
type Step struct {
	ToolName    string          `json:"tool_name,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Observation json.RawMessage `json:"observation,omitempty"`
}

// ObservationString returns the observation unquoted when it is a JSON string.
func (s Step) ObservationString() (string, bool) {
	res := gjson.ParseBytes(s.Observation)
	if res.Type != gjson.String {
		return "", false
	}
	return res.Str, true
}

// RunResponse wraps the raw body of a run. Accessors never fail: absent or
// mistyped fields degrade to fallbacks.
type RunResponse struct {
	Raw json.RawMessage
}

// Text returns the content of the first output part, or fallback when it is
// missing, null or empty. Non-string content is returned as raw JSON.
func (r *RunResponse) Text(fallback string) string {
	if r == nil {
		return fallback
	}
	res := gjson.GetBytes(r.Raw, "output.parts.0.content")
	switch {
	case !res.Exists(), res.Type == gjson.Null:
		return fallback
	case res.Type == gjson.String:
		if res.Str == "" {
			return fallback
		}
		return res.Str
	case res.Type == gjson.False:
		return fallback
	case res.Type == gjson.Number && res.Num == 0:
		return fallback
	default:
		return res.Raw
	}
}

// Steps returns the execution trace, or nil when steps is absent or not an
// array. Elements that are not objects become empty steps so the count
// matches the array.
func (r *RunResponse) Steps() []Step {
	if r == nil {
		return nil
	}
	res := gjson.GetBytes(r.Raw, "steps")
	if !res.IsArray() {
		return nil
	}

	var steps []Step
	res.ForEach(func(_, value gjson.Result) bool {
		step := Step{}
		if !value.IsObject() {
			steps = append(steps, step)
			return true
		}
		if name := value.Get("tool_name"); name.Type == gjson.String {
			step.ToolName = name.Str
		}
		if args := value.Get("arguments"); args.Exists() && args.Type != gjson.Null {
			step.Arguments = json.RawMessage(args.Raw)
		}
		if obs := value.Get("observation"); obs.Exists() && obs.Type != gjson.Null {
			step.Observation = json.RawMessage(obs.Raw)
		}
		steps = append(steps, step)
		return true
	})
	return steps
}

// Health probes GET /health. Any 2xx status is healthy; the body is ignored.
func (c *Client) Health(ctx context.Context) error {
	return c.Get(ctx, HealthPath, nil)
}

// UserContext fetches GET /users/{userID}/context. The identifier is not
// validated; an empty one still produces a request.
func (c *Client) UserContext(ctx context.Context, userID string) (json.RawMessage, error) {
	var blob json.RawMessage
	if err := c.Get(ctx, "/users/"+url.PathEscape(userID)+"/context", &blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// Run submits req to POST /runs and waits for the complete answer.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, RunsPath, req, &raw); err != nil {
		return nil, err
	}
	return &RunResponse{Raw: raw}, nil
}

// RunStream submits req in stream mode and forwards the reply as it arrives.
func (c *Client) RunStream(ctx context.Context, req RunRequest, onChunk func(string)) error {
	req.Mode = ModeStream
	return c.StreamPost(ctx, RunsPath, req, onChunk)
}
