package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"teamchat/internal/models"
)

// APIClient implements ChatAPI over the REST endpoints. Responses use
// the standard envelope; Data carries the payload.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPIClient creates a REST client for the chat API. token is sent
// as a bearer credential on every request.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetChat fetches a chat the user belongs to.
func (a *APIClient) GetChat(chatID string) (*models.Chat, error) {
	var chat models.Chat
	if err := a.do(http.MethodGet, fmt.Sprintf("/chat/%s", chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetMessages fetches the chat's most recent messages.
func (a *APIClient) GetMessages(chatID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/chat/%s/messages?limit=%d", chatID, limit)
	if err := a.do(http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage stores a new message and returns the server's copy.
func (a *APIClient) SendMessage(chatID string, input SendInput) (*models.Message, error) {
	var msg models.Message
	if err := a.do(http.MethodPost, fmt.Sprintf("/chat/%s/messages", chatID), input, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkChatRead marks every unread message in the chat as read.
func (a *APIClient) MarkChatRead(chatID string) error {
	return a.do(http.MethodPost, fmt.Sprintf("/chat/%s/read", chatID), nil, nil)
}

func (a *APIClient) do(method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Message
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return nil
}
