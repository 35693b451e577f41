package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorrastreio"
	"github.com/rastreiolabs/enviowatch/internal/models"
)

// FakeClient — детерминированная заглушка источника отслеживания для демо
// и тестов. Статус выбирается по хэшу кода: часть треков "доставлена".
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Track(ctx context.Context, code string) (melhorrastreio.Result, error) {
	now := time.Now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	v := h.Sum32()

	title := "Objeto em trânsito"
	status := "in_transit"
	if v%5 == 0 {
		title = "Objeto entregue ao destinatário"
		status = "delivered"
	}

	ev := models.TrackingEvent{
		RegisteredAt: now.Format(time.RFC3339),
		Title:        title,
		StatusCode:   status,
		Location:     "São Paulo, SP, BR",
	}

	return melhorrastreio.Result{
		OriginalCode:  code,
		InternalCode:  code,
		CurrentStatus: title,
		Events:        []models.TrackingEvent{ev},
		QueriedAt:     now,
	}, nil
}
