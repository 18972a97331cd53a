package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailSender replies inside an existing thread via the Gmail API. The
// recipientRef is "address|threadId" so replies stay threaded.
type GmailSender struct {
	AccessToken string
	FromAddress string
	BaseURL     string
	HTTPClient  *http.Client
}

func NewGmailSender(accessToken, fromAddress string) *GmailSender {
	return &GmailSender{
		AccessToken: accessToken,
		FromAddress: fromAddress,
		BaseURL:     defaultGmailBaseURL,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type gmailSendRequest struct {
	Raw      string `json:"raw"`
	ThreadID string `json:"threadId,omitempty"`
}

type gmailSendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *GmailSender) Send(ctx context.Context, recipientRef, text string) (string, error) {
	address, threadID := splitRecipientRef(recipientRef)

	rfc822 := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Re: your message\r\n\r\n%s",
		s.FromAddress, address, text)
	payload := gmailSendRequest{
		Raw:      base64.URLEncoding.EncodeToString([]byte(rfc822)),
		ThreadID: threadID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.NewTransportError("ENCODE_FAILED", err.Error())
	}

	url := fmt.Sprintf("%s/users/me/messages/send", s.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", appErrors.NewTransportError("REQUEST_FAILED", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", appErrors.NewTransportError("NETWORK_ERROR", err.Error())
	}
	defer resp.Body.Close()

	var decoded gmailSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", appErrors.NewTransportError("DECODE_FAILED", err.Error())
	}

	if decoded.Error != nil {
		if decoded.Error.Code == http.StatusNotFound {
			return "", appErrors.NewTransportError(appErrors.CodeRecipientNotFound, decoded.Error.Message)
		}
		return "", appErrors.NewTransportError(fmt.Sprintf("GMAIL_%d", decoded.Error.Code), decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", appErrors.NewTransportError(fmt.Sprintf("HTTP_%d", resp.StatusCode), "unexpected status")
	}
	return decoded.ID, nil
}

func splitRecipientRef(ref string) (address, threadID string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '|' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, ""
}
