package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

// TelegramService sends operator alerts to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether alerts can be delivered.
func (s *TelegramService) Enabled() bool {
	return s != nil && s.botToken != "" && s.adminChatID != ""
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s == nil || s.botToken == "" {
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if !s.Enabled() {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// CompensationAlert describes cleanup work that could not be completed.
type CompensationAlert struct {
	Reason string
	Assets []string
	Err    error
}

// NotifyCompensationFailure reports orphaned media to the admin chat.
func (s *TelegramService) NotifyCompensationFailure(ctx context.Context, alert CompensationAlert) error {
	if !s.Enabled() {
		return nil
	}

	var assets strings.Builder
	for i, a := range alert.Assets {
		fmt.Fprintf(&assets, "%d. <code>%s</code>\n", i+1, html.EscapeString(a))
	}

	errText := "unknown"
	if alert.Err != nil {
		errText = alert.Err.Error()
	}

	message := fmt.Sprintf(`<b>Media cleanup failed</b>
<b>Action:</b> %s
<b>Assets:</b>
%s
<b>Error:</b> %s`,
		html.EscapeString(alert.Reason),
		assets.String(),
		html.EscapeString(errText),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
