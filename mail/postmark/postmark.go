// Package postmark sends otpgate mail through the Postmark HTTP API.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MrEthical07/otpgate"
)

// DefaultAPIURL is Postmark's single-message endpoint.
const DefaultAPIURL = "https://api.postmarkapp.com/email"

// Settings contains the settings for the Postmark API.
type Settings struct {
	APIURL        *url.URL
	ServerToken   string
	From          string
	MessageStream string
}

// Sender is an email sender that sends emails using the Postmark API.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) (*Sender, error) {
	if s.ServerToken == "" {
		return nil, errors.New("postmark server token is required")
	}
	if s.From == "" {
		return nil, errors.New("postmark from address is required")
	}
	if s.APIURL == nil {
		u, err := url.Parse(DefaultAPIURL)
		if err != nil {
			return nil, err
		}
		s.APIURL = u
	}
	if s.MessageStream == "" {
		s.MessageStream = "outbound"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{
		client:   client,
		settings: s,
	}, nil
}

type emailJSON struct {
	From          string
	To            string
	Subject       string
	TextBody      string `json:",omitempty"`
	HtmlBody      string `json:",omitempty"`
	MessageStream string
}

type response struct {
	ErrorCode int
	Message   string
	MessageID string
}

// Send sends an email using the Postmark API.
func (s *Sender) Send(ctx context.Context, m otpgate.Mail) error {
	data := emailJSON{
		From:          s.settings.From,
		To:            m.To,
		Subject:       m.Subject,
		TextBody:      m.Text,
		HtmlBody:      m.HTML,
		MessageStream: s.settings.MessageStream,
	}

	var b bytes.Buffer
	err := json.NewEncoder(&b).Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode email json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.APIURL.String(), &b)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", s.settings.ServerToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()

	var res response
	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&res)
	if err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if res.ErrorCode != 0 {
		return fmt.Errorf("error code in response: %d %v", res.ErrorCode, res.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request did not succeed, status code %d", resp.StatusCode)
	}

	return nil
}
