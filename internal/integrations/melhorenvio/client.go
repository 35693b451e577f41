package melhorenvio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Shipment — один заказ из листинга Melhor Envio. Нам нужны только поля,
// от которых зависит мониторинг.
type Shipment struct {
	ID           string    `json:"id"`
	Tracking     string    `json:"tracking"`
	SelfTracking string    `json:"self_tracking"`
	To           Recipient `json:"to"`
}

type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ordersPage struct {
	CurrentPage int        `json:"current_page"`
	Data        []Shipment `json:"data"`
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://melhorenvio.com.br"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListPosted собирает ВСЕ страницы заказов со статусом "posted".
// Конец листинга API сигнализирует не-200 ответом на следующую страницу;
// не-200 на ПЕРВОЙ странице — это ошибка апстрима, а не конец.
func (c *Client) ListPosted(ctx context.Context, token string) ([]Shipment, error) {
	first, status, err := c.getPage(ctx, token, 1)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return []Shipment{}, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("melhorenvio orders http %d", status)
	}

	out := append([]Shipment{}, first.Data...)

	for page := 2; ; page++ {
		next, status, err := c.getPage(ctx, token, page)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK || len(next.Data) == 0 {
			break
		}
		out = append(out, next.Data...)
	}

	return out, nil
}

func (c *Client) getPage(ctx context.Context, token string, page int) (ordersPage, int, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ordersPage{}, 0, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/v2/me/orders"
	q := u.Query()
	q.Set("status", "posted")
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ordersPage{}, 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ordersPage{}, 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ordersPage{}, resp.StatusCode, nil
	}

	var p ordersPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return ordersPage{}, 0, errors.Wrap(err, "decode")
	}
	return p, resp.StatusCode, nil
}
