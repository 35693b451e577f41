package composer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rastreiolabs/enviowatch/internal/models"
	"github.com/rastreiolabs/enviowatch/internal/store"
)

type TemplateKind string

const (
	KindUpdate  TemplateKind = "update"
	KindWelcome TemplateKind = "welcome"
)

const fallbackTitle = "Movimentação registrada"

// TemplateStore — только чтение шаблонов; запись делает админка вне ядра.
type TemplateStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

type cachedTemplate struct {
	body      string
	fetchedAt time.Time
}

// Composer рендерит сообщения из шаблонов с именованными плейсхолдерами.
// Шаблоны читаются из стора и кэшируются на ttl; Invalidate сбрасывает
// кэш немедленно (вызывается при обновлении шаблона админкой).
type Composer struct {
	store TemplateStore
	ttl   time.Duration

	mu    sync.Mutex
	cache map[TemplateKind]cachedTemplate

	now func() time.Time
}

func New(st TemplateStore, ttl time.Duration) *Composer {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Composer{
		store: st,
		ttl:   ttl,
		cache: make(map[TemplateKind]cachedTemplate),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (c *Composer) Template(ctx context.Context, kind TemplateKind) string {
	c.mu.Lock()
	if ce, ok := c.cache[kind]; ok && c.now().Sub(ce.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return ce.body
	}
	c.mu.Unlock()

	body := c.fetch(ctx, kind)

	c.mu.Lock()
	c.cache[kind] = cachedTemplate{body: body, fetchedAt: c.now()}
	c.mu.Unlock()
	return body
}

func (c *Composer) Invalidate(kind TemplateKind) {
	c.mu.Lock()
	delete(c.cache, kind)
	c.mu.Unlock()
}

func (c *Composer) fetch(ctx context.Context, kind TemplateKind) string {
	key := store.KeyUpdateTemplate
	def := defaultUpdateTemplate
	if kind == KindWelcome {
		key = store.KeyWelcomeTemplate
		def = defaultWelcomeTemplate
	}
	if c.store == nil {
		return def
	}
	b, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok || len(b) == 0 {
		return def
	}
	return string(b)
}

// Vars — данные одного уведомления.
type Vars struct {
	ClientName   string
	TrackingCode string
	Event        *models.TrackingEvent
	QueriedAt    string
}

// Render подставляет плейсхолдеры в шаблон. Чистая подстановка строк:
// неизвестные плейсхолдеры остаются в тексте буквально.
func (c *Composer) Render(ctx context.Context, kind TemplateKind, v Vars) string {
	tpl := c.Template(ctx, kind)

	title := fallbackTitle
	location := ""
	route := ""
	date := ""
	if v.Event != nil {
		title = EventTitle(*v.Event)
		location = v.Event.Location
		route = formatRoute(v.Event.Origin, v.Event.Destination)
		date = FormatDateBR(v.Event.RegisteredAt)
	}
	if date == "" {
		date = FormatDateBR(v.QueriedAt)
	}

	repl := map[string]string{
		"{nome}":   FirstName(v.ClientName),
		"{codigo}": v.TrackingCode,
		"{status}": title,
		"{emoji}":  statusEmoji(title),
		"{local}":  location,
		"{rota}":   route,
		"{data}":   date,
		"{link}":   "https://melhorrastreio.com.br/" + v.TrackingCode,
	}

	out := tpl
	for k, val := range repl {
		out = strings.ReplaceAll(out, k, val)
	}
	return out
}

// EventTitle — приоритет текста статуса: заголовок, иначе описание,
// иначе фиксированный фолбэк.
func EventTitle(e models.TrackingEvent) string {
	if e.Title != "" {
		return e.Title
	}
	if e.Description != "" {
		return e.Description
	}
	return fallbackTitle
}

// FirstName берёт первое слово имени и приводит к виду "Maria".
func FirstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Olá"
	}
	first := strings.ToLower(fields[0])
	r := []rune(first)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// FormatDateBR форматирует ISO-метку в "dd/mm/yyyy às HH:MM".
func FormatDateBR(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("02/01/2006 às 15:04")
		}
	}
	// Метка в незнакомом формате: показываем как есть, без 'T'.
	out := strings.ReplaceAll(strings.ReplaceAll(raw, "T", " "), "Z", "")
	if len(out) > 16 {
		out = out[:16]
	}
	return out
}

func formatRoute(origin, destination string) string {
	switch {
	case origin != "" && destination != "":
		return origin + " → " + destination
	case origin != "":
		return origin
	case destination != "":
		return destination
	default:
		return ""
	}
}

func statusEmoji(title string) string {
	low := strings.ToLower(title)
	switch {
	case strings.Contains(low, "entregue") || strings.Contains(low, "delivered"):
		return "✅"
	case strings.Contains(low, "saiu"):
		return "📤"
	case strings.Contains(low, "entrega"):
		return "🚚"
	case strings.Contains(low, "postado") || strings.Contains(low, "postagem"):
		return "📮"
	case strings.Contains(low, "trânsito") || strings.Contains(low, "transito"):
		return "🚛"
	case strings.Contains(low, "transferência") || strings.Contains(low, "transferencia"):
		return "🔄"
	case strings.Contains(low, "chegou") || strings.Contains(low, "chegada"):
		return "📥"
	case strings.Contains(low, "aguard"):
		return "⏳"
	default:
		return "📦"
	}
}
