package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/example/sitesnap/internal/config"
)

var errPlumDisabled = errors.New("plum integration is disabled")

// PlumClient sends SMS through the Plum gateway and caches its auth token.
type PlumClient struct {
	cfg        config.PlumConfig
	httpClient *http.Client

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewPlumClient returns nil when the gateway is disabled.
func NewPlumClient(cfg config.PlumConfig) *PlumClient {
	if !cfg.Enabled {
		return nil
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PlumClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type plumAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (p *PlumClient) getToken(ctx context.Context, force bool) (string, error) {
	if p == nil {
		return "", errPlumDisabled
	}

	if !force {
		p.mu.RLock()
		if p.token != "" && time.Now().Before(p.tokenExpiry) {
			t := p.token
			p.mu.RUnlock()
			return t, nil
		}
		p.mu.RUnlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if !force && p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"username": p.cfg.Username,
		"password": p.cfg.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "plum auth request build")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "plum auth request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("plum auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp plumAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", errors.Wrap(err, "plum auth unmarshal")
	}
	if authResp.Token == "" {
		return "", errors.New("plum auth: empty token")
	}

	p.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		p.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		p.tokenExpiry = time.Now().Add(55 * time.Minute)
	}

	return p.token, nil
}

func (p *PlumClient) post(ctx context.Context, path string, body any) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "plum request marshal")
	}

	send := func(token string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(data))
		if err != nil {
			return 0, nil, errors.Wrap(err, "plum request build")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return 0, nil, errors.Wrap(err, "plum request")
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, respBody, nil
	}

	token, err := p.getToken(ctx, false)
	if err != nil {
		return 0, nil, err
	}
	status, respBody, err := send(token)
	if err != nil || status != http.StatusUnauthorized {
		return status, respBody, err
	}

	// Token was revoked upstream; refresh once.
	token, err = p.getToken(ctx, true)
	if err != nil {
		return 0, nil, err
	}
	return send(token)
}

// SendSMS delivers message to phone.
func (p *PlumClient) SendSMS(ctx context.Context, phone, message string) error {
	if p == nil {
		return errPlumDisabled
	}
	status, body, err := p.post(ctx, "sms/send", map[string]string{
		"phone":   phone,
		"message": message,
	})
	if err != nil {
		return errors.Wrap(err, "plum send sms")
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("plum send sms: status %d, body: %s", status, string(body))
	}
	return nil
}

// Send implements Dispatcher for the SMS channel.
func (p *PlumClient) Send(ctx context.Context, msg Message) error {
	return p.SendSMS(ctx, msg.To, msg.Body)
}
