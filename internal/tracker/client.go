package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/complyport/screening-relay/internal/model"
	"github.com/complyport/screening-relay/internal/relay"
)

// TokenSource supplies a bearer token for authenticated calls. Optional; the
// relay itself does not require one, but deployments fronted by a gateway do.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Client talks to the relay over HTTP: cursor polls and the SSE push channel.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource // optional
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithTokenSource attaches an optional token source.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}

	tok, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}

// Poll fetches events with sequence > since.
func (c *Client) Poll(ctx context.Context, since int64) (relay.PollResult, error) {
	u := c.baseURL + "/api/events?since=" + strconv.FormatInt(since, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return relay.PollResult{}, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return relay.PollResult{}, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return relay.PollResult{}, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return relay.PollResult{}, fmt.Errorf("poll status=%d", res.StatusCode)
	}

	var out relay.PollResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return relay.PollResult{}, fmt.Errorf("poll decode: %w", err)
	}

	return out, nil
}

// Stream consumes the push channel, invoking handler for every domain event
// frame. Comment (keepalive) frames are skipped. Returns when the stream
// ends or the context is cancelled.
func (c *Client) Stream(ctx context.Context, handler func(model.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	// no overall timeout: the stream is long-lived by design
	streamClient := &http.Client{}
	res, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("stream status=%d", res.StatusCode)
	}

	reader := bufio.NewReader(res.Body)
	var dataLines []string

	dispatch := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var evt model.Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return fmt.Errorf("stream decode: %w", err)
		}

		return handler(evt)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// id:/event: fields are carried inside the JSON payload already
		}
	}
}
