package http

import "net/http"

const sessionName = "catalog"

// Сообщения об успешных операциях
const (
	msgCreated = "Товар успешно добавлен"
	msgUpdated = "Товар успешно изменен"
	msgDeleted = "Товар успешно удален"
)

// flash сохраняет сообщение в сессии до следующего показа страницы.
// Вызывается до записи статуса ответа, так как сессия пишется в cookie
func (h *Handler) flash(w http.ResponseWriter, r *http.Request, msg string) {
	if h.sessions == nil {
		return
	}
	// при ошибке декодирования cookie Get возвращает новую сессию
	sess, err := h.sessions.Get(r, sessionName)
	if err != nil {
		h.log.Warn("session decode failed", "error", err)
	}
	sess.AddFlash(msg)
	if err := sess.Save(r, w); err != nil {
		h.log.Warn("session save failed", "error", err)
	}
}

// messages забирает накопленные flash-сообщения
func (h *Handler) messages(w http.ResponseWriter, r *http.Request) []string {
	out := []string{}
	if h.sessions == nil {
		return out
	}
	sess, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return out
	}
	flashes := sess.Flashes()
	if len(flashes) == 0 {
		return out
	}
	for _, f := range flashes {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	if err := sess.Save(r, w); err != nil {
		h.log.Warn("session save failed", "error", err)
	}
	return out
}
