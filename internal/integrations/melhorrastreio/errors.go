package melhorrastreio

import "github.com/pkg/errors"

// ErrorKind — закрытый набор классов ошибок источника отслеживания.
// Классификация выполняется один раз на границе клиента; дальше логика
// ретраев/уведомлений переключается по Kind, а не парсит текст заново.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindRateLimited
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf возвращает класс ошибки; для nil и посторонних ошибок — KindOther.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindOther
}
