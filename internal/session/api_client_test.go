package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"teamchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAPIClientGetChat(t *testing.T) {
	chatID := primitive.NewObjectID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/chat/"+chatID.Hex(), r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    models.Chat{ID: chatID, ChatType: models.ChatTypeGroup, Name: "devs"},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "token-1")
	chat, err := client.GetChat(chatID.Hex())
	require.NoError(t, err)
	assert.Equal(t, chatID, chat.ID)
	assert.Equal(t, "devs", chat.Name)
}

func TestAPIClientSendMessage(t *testing.T) {
	msgID := primitive.NewObjectID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var input SendInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "hello", input.Content)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    models.Message{ID: msgID, Content: input.Content, DeliveryStatus: models.StatusSent},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")
	msg, err := client.SendMessage(primitive.NewObjectID().Hex(), SendInput{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, msgID, msg.ID)
	assert.Equal(t, models.StatusSent, msg.DeliveryStatus)
}

func TestAPIClientSurfacesEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]string{
				"code":    "FORBIDDEN",
				"message": "send-messages",
			},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "token-1")
	_, err := client.SendMessage(primitive.NewObjectID().Hex(), SendInput{Content: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "send-messages")
}

func TestAPIClientMarkChatRead(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]int{"marked": 3},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")
	require.NoError(t, client.MarkChatRead(primitive.NewObjectID().Hex()))
	assert.Equal(t, 1, calls)
}
