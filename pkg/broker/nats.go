// Пакет broker публикует события каталога в NATS
package broker

import "encoding/json"

// Conn минимальный интерфейс NATS-подключения, *nats.Conn ему удовлетворяет
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher хранит Conn и тему subject для публикации событий
type NATSPublisher struct {
	conn    Conn
	subject string
}

// NewPublisher создаёт NATSPublisher, связывая Conn и subject
func NewPublisher(conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Subject тема, в которую публикуются события
func (n *NATSPublisher) Subject() string {
	return n.subject
}

// Publish сериализует событие в JSON и отправляет его в subject
func (n *NATSPublisher) Publish(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}
