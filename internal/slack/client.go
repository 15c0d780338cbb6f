// Package slack provides the transport adapter for the Slack platform:
// a Web API client for outbound messages, file uploads, and the roster,
// plus the RTM websocket loop that delivers inbound messages.
//
// The [Client] type satisfies the session package's Messenger and ReportSink
// interfaces; the core never sees Slack-specific types.
package slack

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// defaultAPIBaseURL is the public Slack Web API endpoint.
const defaultAPIBaseURL = "https://slack.com/api"

// ///////////////////////////////////////////////
// HTTP Client
// ///////////////////////////////////////////////

// httpClient is a lazily-initialized retryablehttp client shared across all
// API calls. Initialized once via httpClientOnce.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns the shared retryable HTTP client, initializing it on
// first call.
func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil // suppress retryablehttp's default logging
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is a minimal Slack Web API client covering the handful of methods
// the daemon needs: chat.postMessage, files.upload, users.list, rtm.connect.
type Client struct {
	// token is the Slack API token, sent as a bearer credential.
	token string
	// baseURL is the Web API root; overridable for tests.
	baseURL string
	// http is the retrying HTTP client.
	http *retryablehttp.Client
}

// NewClient creates a Slack client for the given token. An empty baseURL
// selects the public Slack API.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    getHTTPClient(),
	}
}

// apiEnvelope is the common Slack response wrapper.
type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// call POSTs a form-encoded Web API method and returns the raw response body
// after checking the ok/error envelope.
func (c *Client) call(method string, form url.Values) ([]byte, error) {
	req, err := retryablehttp.NewRequest("POST", c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", method, err)
	}
	if !env.OK {
		return nil, fmt.Errorf("%s failed: %s", method, env.Error)
	}
	return body, nil
}

// ///////////////////////////////////////////////
// Outbound Messages
// ///////////////////////////////////////////////

// PostMessage sends a chat message to a channel or user ID.
func (c *Client) PostMessage(channel, text string) error {
	form := url.Values{}
	form.Set("channel", channel)
	form.Set("text", text)
	form.Set("as_user", "true")
	_, err := c.call("chat.postMessage", form)
	return err
}

// SendMessage delivers a direct message to a user. It satisfies the session
// package's Messenger interface.
func (c *Client) SendMessage(userID, text string) error {
	return c.PostMessage(userID, text)
}

// SendReport uploads the daily summary as a text file shared with the user
// and every recipient. It satisfies the session package's ReportSink
// interface.
func (c *Client) SendReport(userID string, recipients []string, title, body string) error {
	channels := make([]string, 0, len(recipients)+1)
	channels = append(channels, userID)
	for _, rcpt := range recipients {
		if rcpt != userID {
			channels = append(channels, rcpt)
		}
	}

	form := url.Values{}
	form.Set("channels", strings.Join(channels, ","))
	form.Set("filename", title)
	form.Set("content", body)
	_, err := c.call("files.upload", form)
	return err
}

// ///////////////////////////////////////////////
// Roster
// ///////////////////////////////////////////////

// User is one entry from the workspace roster.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	IsBot   bool   `json:"is_bot"`
}

// ListUsers fetches the workspace roster, excluding deleted accounts.
func (c *Client) ListUsers() ([]User, error) {
	body, err := c.call("users.list", url.Values{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Members []User `json:"members"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing users.list response: %w", err)
	}

	users := make([]User, 0, len(resp.Members))
	for _, u := range resp.Members {
		if u.Deleted {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// ///////////////////////////////////////////////
// RTM Bootstrap
// ///////////////////////////////////////////////

// RTMConnect requests a fresh websocket URL for the Real Time Messaging
// stream. The URL is single-use and expires quickly, so it is fetched
// immediately before each dial.
func (c *Client) RTMConnect() (string, error) {
	body, err := c.call("rtm.connect", url.Values{})
	if err != nil {
		return "", err
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing rtm.connect response: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("rtm.connect returned no websocket URL")
	}
	return resp.URL, nil
}
