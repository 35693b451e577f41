package melhorrastreio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rastreiolabs/enviowatch/internal/models"
)

// Result — нормализованный ответ источника отслеживания.
// Events упорядочены от нового к старому; индекс 0 — текущее событие.
type Result struct {
	OriginalCode  string
	InternalCode  string
	CurrentStatus string
	Events        []models.TrackingEvent
	QueriedAt     time.Time
}

type Client interface {
	Track(ctx context.Context, code string) (Result, error)
}

const graphqlQuery = `
query($tracker: TrackerTrackingCode!) {
    findByTrackingCode(tracker: $tracker) {
        trackers {
            trackingCode
            type
            shippingService
        }
        trackingEvents {
            trackingCode
            status
            title
            description
            registeredAt
            from
            to
            location {
                city
                state
                country
            }
        }
    }
}
`

type HTTPClient struct {
	baseURL string
	httpc   *http.Client
}

func NewHTTP(baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.melhorrastreio.com.br/graphql"
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type gqlRequest struct {
	Query     string `json:"query"`
	Variables struct {
		Tracker struct {
			TrackingCode string `json:"trackingCode"`
		} `json:"tracker"`
	} `json:"variables"`
}

type gqlLocation struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type gqlEvent struct {
	Status       string       `json:"status"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	RegisteredAt string       `json:"registeredAt"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	Location     *gqlLocation `json:"location"`
}

type gqlResponse struct {
	Data struct {
		FindByTrackingCode *struct {
			Trackers []struct {
				TrackingCode string `json:"trackingCode"`
			} `json:"trackers"`
			TrackingEvents []gqlEvent `json:"trackingEvents"`
		} `json:"findByTrackingCode"`
	} `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		StatusCode any    `json:"statusCode"`
	} `json:"errors"`
}

func (c *HTTPClient) Track(ctx context.Context, code string) (Result, error) {
	var gr gqlRequest
	gr.Query = graphqlQuery
	gr.Variables.Tracker.TrackingCode = code

	body, err := json.Marshal(gr)
	if err != nil {
		return Result{}, errors.Wrap(err, "marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", "https://www.melhorrastreio.com.br")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Result{}, newError(KindTimeout, "melhorrastreio timeout: "+err.Error())
		}
		return Result{}, newError(KindOther, "melhorrastreio request: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, newError(KindRateLimited, "melhorrastreio rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return Result{}, newError(KindOther, fmt.Sprintf("melhorrastreio http %d", resp.StatusCode))
	}

	var r gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{}, newError(KindOther, "melhorrastreio decode: "+err.Error())
	}

	if len(r.Errors) > 0 {
		return Result{}, classifyAPIError(r.Errors[0].Message, fmt.Sprint(r.Errors[0].StatusCode))
	}

	found := r.Data.FindByTrackingCode
	if found == nil {
		return Result{}, newError(KindNotFound, "tracking code not found")
	}

	res := Result{
		OriginalCode: code,
		QueriedAt:    time.Now().UTC(),
	}
	if len(found.Trackers) > 0 {
		res.InternalCode = found.Trackers[0].TrackingCode
	}

	for _, e := range found.TrackingEvents {
		res.Events = append(res.Events, models.TrackingEvent{
			RegisteredAt: e.RegisteredAt,
			Title:        e.Title,
			Description:  e.Description,
			StatusCode:   e.Status,
			Origin:       e.From,
			Destination:  e.To,
			Location:     formatLocation(e.Location),
		})
	}

	// Новые события первыми. RegisteredAt — ISO-метка, строкового сравнения достаточно.
	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].RegisteredAt > res.Events[j].RegisteredAt
	})

	if len(res.Events) > 0 {
		cur := res.Events[0]
		res.CurrentStatus = cur.Title
		if res.CurrentStatus == "" {
			res.CurrentStatus = cur.Description
		}
	}

	return res, nil
}

// classifyAPIError переводит свободный текст ошибки GraphQL в типизированный класс.
func classifyAPIError(msg, statusCode string) *Error {
	low := strings.ToLower(msg + " " + statusCode)
	switch {
	case strings.Contains(low, "parcel_not_found") || strings.Contains(low, "not found"):
		return newError(KindNotFound, msg)
	case strings.Contains(low, "429") || strings.Contains(low, "rate limit") || strings.Contains(low, "too many requests"):
		return newError(KindRateLimited, msg)
	case strings.Contains(low, "timeout") || strings.Contains(low, "timed out"):
		return newError(KindTimeout, msg)
	default:
		return newError(KindOther, msg)
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	return errors.As(err, &te) && te.Timeout()
}

func formatLocation(l *gqlLocation) string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
