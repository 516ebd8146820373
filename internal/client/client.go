package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"furnivox/internal/command"
)

var ErrServer = errors.New("server error")

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Ping returns the server's status message.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/ping", "", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) ProcessCommand(ctx context.Context, text string) (command.Action, error) {
	body, err := json.Marshal(map[string]string{"command": text})
	if err != nil {
		return nil, err
	}

	var action command.Action
	if err := c.do(ctx, http.MethodPost, "/api/process_command", "application/json", bytes.NewReader(body), &action); err != nil {
		return nil, err
	}
	return action, nil
}

// ProcessAudio uploads a recording (wav, mp3 or ogg). The returned action
// carries the recognized text under "transcript".
func (c *Client) ProcessAudio(ctx context.Context, audio io.Reader, contentType string) (command.Action, error) {
	var action command.Action
	if err := c.do(ctx, http.MethodPost, "/api/process_audio", contentType, audio, &action); err != nil {
		return nil, err
	}
	return action, nil
}

func (c *Client) do(ctx context.Context, method, path, ctype string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return replyError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s reply: %w", path, err)
	}
	return nil
}

// replyError turns an {error} or {message} body into an ErrServer.
func replyError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Message != "":
			msg = body.Message
		}
	}
	return fmt.Errorf("%w: %d: %s", ErrServer, resp.StatusCode, msg)
}
