package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/musterhq/muster/internal/core/directory"
	"github.com/musterhq/muster/internal/core/message"
	"github.com/musterhq/muster/internal/core/ticket"
)

// APIError is a structured error response from the portal.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("portal: %s (%s, http %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("portal: %s (http %d)", e.Message, e.Status)
}

// Retryable reports whether the failure is a transient condition worth
// retrying.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the portal API base URL, e.g. "https://portal.example.org".
	BaseURL string
	// Session supplies the auth token and the expiry callback.
	Session *Session
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	session    *Session
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a portal API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("remote: Session is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		session:    cfg.Session,
		httpClient: httpClient,
		log:        cfg.Logger,
	}, nil
}

// CloseIdleConnections drops pooled connections. Called after transport
// errors so the next request opens a fresh socket instead of reusing a
// poisoned one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// doRequest performs one JSON request/response round trip. A nil body
// sends no payload. Non-2xx responses are mapped to *APIError; a 401
// expires the session.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	_ = json.Unmarshal(data, apiErr) // error payload is best effort

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.session.Expire()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionExpired)
	case apiErr.Code == "credential_expired":
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrStreamCredential)
	}

	return nil, apiErr
}

func (c *Client) SendMessage(ctx context.Context, msg message.Message) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/messages", nil, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse send response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("send message: server returned no id")
	}
	return resp.ID, nil
}

func (c *Client) ListMessages(ctx context.Context, actorID string) ([]message.Message, error) {
	query := url.Values{"actor_id": {actorID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/messages", query, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return parseMessages(body)
}

func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	path := "/api/messages/" + url.PathEscape(messageID) + "/read"
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	return nil
}

func (c *Client) ListActors(ctx context.Context) ([]directory.Actor, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/actors", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}

	var resp listActorsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse actors payload: %w", err)
	}
	return resp.Actors, nil
}

func (c *Client) ListOnlinePresence(ctx context.Context) ([]string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/presence", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}

	var resp presenceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse presence payload: %w", err)
	}
	return resp.Online, nil
}

func (c *Client) ListTickets(ctx context.Context, actorID string) ([]ticket.Ticket, error) {
	query := url.Values{"actor_id": {actorID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/tickets", query, nil)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return parseTickets(body)
}

func (c *Client) CreateTicket(ctx context.Context, t ticket.Ticket) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/tickets", nil, t)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}

	var resp createTicketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create ticket: server returned no id")
	}
	return resp.ID, nil
}

func (c *Client) UpdateTicket(ctx context.Context, ticketID string, patch TicketPatch) error {
	path := "/api/tickets/" + url.PathEscape(ticketID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, nil, patch); err != nil {
		return fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	return nil
}

func (c *Client) UploadAttachment(ctx context.Context, ticketID string, meta ticket.FileMeta, body io.Reader) (ticket.Attachment, error) {
	endpoint := c.baseURL + "/api/tickets/" + url.PathEscape(ticketID) + "/attachments"
	query := url.Values{
		"file_name":    {meta.FileName},
		"content_type": {meta.ContentType},
		"size":         {strconv.FormatInt(meta.FileSize, 10)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(), body)
	if err != nil {
		return ticket.Attachment{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.session.Token())
	req.ContentLength = meta.FileSize

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ticket.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ticket.Attachment{}, fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Expire()
		return ticket.Attachment{}, fmt.Errorf("upload attachment: %w", ErrSessionExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		_ = json.Unmarshal(data, apiErr)
		return ticket.Attachment{}, apiErr
	}

	var parsed uploadAttachmentResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ticket.Attachment{}, fmt.Errorf("parse upload response: %w", err)
	}
	return parsed.Attachment, nil
}

func (c *Client) DownloadAttachment(ctx context.Context, ticketID, attachmentID string, dst io.Writer) error {
	endpoint := c.baseURL + "/api/tickets/" + url.PathEscape(ticketID) + "/attachments/" + url.PathEscape(attachmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Expire()
		return fmt.Errorf("download attachment: %w", ErrSessionExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("write attachment bytes: %w", err)
	}
	return nil
}

func (c *Client) NotifyMentions(ctx context.Context, mentionedIDs []string, contextText string) error {
	payload := map[string]any{
		"mentioned_ids": mentionedIDs,
		"context":       contextText,
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/notifications/mentions", nil, payload); err != nil {
		return fmt.Errorf("notify mentions: %w", err)
	}
	return nil
}

func (c *Client) StreamTicket(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/stream/ticket", nil, nil)
	if err != nil {
		return "", fmt.Errorf("stream ticket: %w", err)
	}

	var resp streamTicketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse stream ticket response: %w", err)
	}
	if resp.Ticket == "" {
		return "", fmt.Errorf("stream ticket: server returned no ticket")
	}
	return resp.Ticket, nil
}

func (c *Client) StreamConnect(ctx context.Context, streamTicket string) (string, error) {
	payload := map[string]string{"ticket": streamTicket}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/stream/connect", nil, payload)
	if err != nil {
		return "", fmt.Errorf("stream connect: %w", err)
	}

	var resp streamConnectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse stream connect response: %w", err)
	}
	if resp.Credential == "" {
		return "", fmt.Errorf("stream connect: server returned no credential")
	}
	return resp.Credential, nil
}

func (c *Client) StreamEvents(ctx context.Context, credential, since string, holdMillis int) (StreamBatch, error) {
	query := url.Values{
		"credential": {credential},
		"hold_ms":    {strconv.Itoa(holdMillis)},
	}
	if since != "" {
		query.Set("since", since)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/stream", query, nil)
	if err != nil {
		return StreamBatch{}, fmt.Errorf("stream events: %w", err)
	}
	return parseStreamBatch(body)
}
