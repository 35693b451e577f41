package composer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rastreiolabs/enviowatch/internal/models"
	"github.com/rastreiolabs/enviowatch/internal/store"
)

type memTemplateStore struct {
	m map[string][]byte
}

func (s *memTemplateStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.m[key]
	return b, ok, nil
}

func TestRender_SubstitutesPlaceholders(t *testing.T) {
	ts := &memTemplateStore{m: map[string][]byte{
		store.KeyUpdateTemplate: []byte("{nome}: {emoji} {status} em {local} ({data}) {codigo}"),
	}}
	c := New(ts, time.Minute)

	out := c.Render(context.Background(), KindUpdate, Vars{
		ClientName:   "maria silva",
		TrackingCode: "BR1",
		Event: &models.TrackingEvent{
			RegisteredAt: "2025-03-10T14:30:00Z",
			Title:        "Objeto entregue ao destinatário",
			Location:     "São Paulo, SP, BR",
		},
	})

	require.Contains(t, out, "Maria:")
	require.Contains(t, out, "✅ Objeto entregue ao destinatário")
	require.Contains(t, out, "em São Paulo, SP, BR")
	require.Contains(t, out, "10/03/2025 às 14:30")
	require.Contains(t, out, "BR1")
}

func TestRender_UnknownPlaceholderStaysLiteral(t *testing.T) {
	ts := &memTemplateStore{m: map[string][]byte{
		store.KeyUpdateTemplate: []byte("{nome} {desconhecido}"),
	}}
	c := New(ts, time.Minute)

	out := c.Render(context.Background(), KindUpdate, Vars{ClientName: "Ana"})
	require.Contains(t, out, "{desconhecido}")
}

func TestTemplate_FallsBackToDefault(t *testing.T) {
	c := New(&memTemplateStore{m: map[string][]byte{}}, time.Minute)
	require.Equal(t, defaultUpdateTemplate, c.Template(context.Background(), KindUpdate))
	require.Equal(t, defaultWelcomeTemplate, c.Template(context.Background(), KindWelcome))
}

func TestTemplate_CacheAndInvalidate(t *testing.T) {
	ts := &memTemplateStore{m: map[string][]byte{
		store.KeyUpdateTemplate: []byte("v1"),
	}}
	c := New(ts, time.Hour)

	require.Equal(t, "v1", c.Template(context.Background(), KindUpdate))

	// Пока TTL не истёк, стор не перечитывается.
	ts.m[store.KeyUpdateTemplate] = []byte("v2")
	require.Equal(t, "v1", c.Template(context.Background(), KindUpdate))

	c.Invalidate(KindUpdate)
	require.Equal(t, "v2", c.Template(context.Background(), KindUpdate))
}

func TestEventTitle_Precedence(t *testing.T) {
	require.Equal(t, "T", EventTitle(models.TrackingEvent{Title: "T", Description: "D"}))
	require.Equal(t, "D", EventTitle(models.TrackingEvent{Description: "D"}))
	require.Equal(t, fallbackTitle, EventTitle(models.TrackingEvent{}))
}

func TestFirstName(t *testing.T) {
	require.Equal(t, "Maria", FirstName("maria aparecida silva"))
	require.Equal(t, "João", FirstName("JOÃO"))
	require.Equal(t, "Olá", FirstName("  "))
}

func TestFormatDateBR(t *testing.T) {
	require.Equal(t, "01/02/2025 às 09:05", FormatDateBR("2025-02-01T09:05:00Z"))
	require.Equal(t, "01/02/2025 às 09:05", FormatDateBR("2025-02-01T09:05:00"))
	require.Equal(t, "", FormatDateBR(""))
	// Незнакомый формат показывается как есть, без 'T'.
	require.Equal(t, "2025-02-01 09:05", FormatDateBR("2025-02-01T09:05"))
}

func TestStatusEmoji(t *testing.T) {
	require.Equal(t, "✅", statusEmoji("Objeto entregue"))
	require.Equal(t, "🚛", statusEmoji("Objeto em trânsito"))
	require.Equal(t, "📮", statusEmoji("Objeto postado"))
	require.Equal(t, "📦", statusEmoji("sei lá"))
}
