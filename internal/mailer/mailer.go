// Package mailer доставляет одноразовые коды по электронной почте.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const otpTemplate = "login_otp"

// EmailRequest описывает запрос к почтовому сервису.
type EmailRequest struct {
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

// EmailResponse описывает ответ почтового сервиса.
type EmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client отправляет письма через HTTP API почтового сервиса с повторными попытками.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент почтового сервиса.
func NewClient(baseURL string, retryMax int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
		logger:     logger,
	}
}

// SendEmail отправляет письмо.
func (c *Client) SendEmail(ctx context.Context, req *EmailRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	var emailResp EmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&emailResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !emailResp.Success {
		return fmt.Errorf("email service returned error: %s", emailResp.Message)
	}

	c.logger.Info("email sent", zap.String("to", req.To), zap.String("template", req.Template))
	return nil
}

// SendCode отправляет одноразовый код входа.
func (c *Client) SendCode(ctx context.Context, email, code string) error {
	return c.SendEmail(ctx, &EmailRequest{
		To:       email,
		Subject:  "Your login code",
		Template: otpTemplate,
		Variables: map[string]string{
			"otp":    code,
			"expiry": "5 minutes",
		},
	})
}

// LogSender только записывает код в журнал. Используется, если почтовый сервис не настроен.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendCode записывает код в журнал.
func (s *LogSender) SendCode(_ context.Context, email, code string) error {
	s.logger.Info("otp code generated",
		zap.String("email", email),
		zap.String("code", code),
		zap.Duration("expires_in", 5*time.Minute),
	)
	return nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
