// Package client is a Go client for the chat API: REST calls, a websocket
// connection and a reducer that keeps one user's view of their conversations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"nhanz-chat/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api error %d: %s", e.StatusCode, e.Message)
}

// Client calls the chat REST API. Token is sent as a bearer credential once set.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:4000"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// AvatarResponse is returned by UploadAvatar.
type AvatarResponse struct {
	Avatar  *string `json:"avatar"`
	Message string  `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doRequest(ctx, method, path, contentType, body, out)
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, username, name, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"name":     name,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.Token = resp.Token
	return &resp, nil
}

// Login signs in and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.Token = resp.Token
	return &resp, nil
}

// ChangePassword replaces the caller's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/change-password", map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, nil)
}

// Conversations lists the caller's conversations.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/app", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// StartConversation returns the direct conversation with targetUserID, creating it if needed.
func (c *Client) StartConversation(ctx context.Context, targetUserID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/api/app", map[string]string{"targetUserId": targetUserID}, &conv)
	return conv, err
}

// Contacts lists every other user.
func (c *Client) Contacts(ctx context.Context) ([]models.PublicProfile, error) {
	var profiles []models.PublicProfile
	if err := c.doJSON(ctx, http.MethodGet, "/api/app/users", nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ProfileUpdate holds the optional fields of a profile edit.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Status   *string `json:"status,omitempty"`
}

// UpdateProfile edits the caller's profile.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (models.User, error) {
	var user models.User
	err := c.doJSON(ctx, http.MethodPut, "/api/app/users/profile", update, &user)
	return user, err
}

// UploadAvatar sends an image as the caller's avatar.
func (c *Client) UploadAvatar(ctx context.Context, filename, contentType string, image io.Reader) (*AvatarResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	var resp AvatarResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/app/users/avatar", form.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns a conversation's messages oldest first.
func (c *Client) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(conversationID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// General returns the shared community conversation.
func (c *Client) General(ctx context.Context) (models.Conversation, error) {
	var conv models.Conversation
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/general", nil, &conv)
	return conv, err
}

// websocketURL maps the REST base URL onto the /ws endpoint.
func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
