package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client отправляет простые текстовые сообщения через simplified-API
// WhatsApp-провайдера (Umbler uTalk).
type Client struct {
	rc        *resty.Client
	fromPhone string
	orgID     string
}

func New(baseURL, token, fromPhone, orgID string) *Client {
	if baseURL == "" {
		baseURL = "https://app-utalk.umbler.com"
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(token)

	return &Client{
		rc:        rc,
		fromPhone: fromPhone,
		orgID:     orgID,
	}
}

type sendRequest struct {
	ToPhone        string  `json:"toPhone"`
	FromPhone      string  `json:"fromPhone"`
	OrganizationID string  `json:"organizationId"`
	Message        string  `json:"message"`
	File           *string `json:"file"`
	SkipReassign   bool    `json:"skipReassign"`
	ContactName    string  `json:"contactName"`
}

func (c *Client) Send(ctx context.Context, phone, text string) error {
	to, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(sendRequest{
			ToPhone:        to,
			FromPhone:      c.fromPhone,
			OrganizationID: c.orgID,
			Message:        text,
			SkipReassign:   false,
			ContactName:    "Rastreio",
		}).
		Post("/api/v1/messages/simplified/")
	if err != nil {
		return errors.Wrap(err, "whatsapp send")
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("whatsapp api http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// NormalizePhone приводит номер к "+<digits>" с обязательным кодом страны 55.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("invalid phone: %q", phone)
	}
	if !strings.HasPrefix(digits, "55") {
		digits = "55" + digits
	}
	return "+" + digits, nil
}
