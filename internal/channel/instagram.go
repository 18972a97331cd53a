package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// InstagramSender delivers DMs through the Messenger Graph API.
type InstagramSender struct {
	AccessToken string
	BaseURL     string
	HTTPClient  *http.Client
}

func NewInstagramSender(accessToken string) *InstagramSender {
	return &InstagramSender{
		AccessToken: accessToken,
		BaseURL:     defaultGraphBaseURL,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type igSendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type igSendResponse struct {
	MessageID string `json:"message_id"`
	Error     *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *InstagramSender) Send(ctx context.Context, recipientRef, text string) (string, error) {
	var payload igSendRequest
	payload.Recipient.ID = recipientRef
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.NewTransportError("ENCODE_FAILED", err.Error())
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", s.BaseURL, s.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", appErrors.NewTransportError("REQUEST_FAILED", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", appErrors.NewTransportError("NETWORK_ERROR", err.Error())
	}
	defer resp.Body.Close()

	var decoded igSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", appErrors.NewTransportError("DECODE_FAILED", err.Error())
	}

	if decoded.Error != nil {
		// Graph error 551: "This person isn't available right now" — the
		// recipient blocked the account or no longer exists.
		if decoded.Error.Code == 551 || resp.StatusCode == http.StatusNotFound {
			return "", appErrors.NewTransportError(appErrors.CodeRecipientNotFound, decoded.Error.Message)
		}
		return "", appErrors.NewTransportError(fmt.Sprintf("GRAPH_%d", decoded.Error.Code), decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", appErrors.NewTransportError(fmt.Sprintf("HTTP_%d", resp.StatusCode), "unexpected status")
	}
	return decoded.MessageID, nil
}
