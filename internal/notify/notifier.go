package notify

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/pkg/kafka"
)

// Notifier publishes notification events for the external dispatcher.
// Fire-and-forget: a broker failure is logged and never blocks the
// borrow/return workflow.
type Notifier struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

func New(producer sarama.SyncProducer, log *zap.Logger) *Notifier {
	return &Notifier{
		producer: producer,
		log:      log.Named("notify"),
	}
}

type BorrowedEvent struct {
	BookID             int        `json:"bookId"`
	BookTitle          string     `json:"bookTitle"`
	Username           string     `json:"username"`
	ExpectedReturnDate model.Date `json:"expectedReturnDate"`
	DailyFee           string     `json:"dailyFee"`
	Message            string     `json:"message"`
}

type OverdueDigest struct {
	AsOf    model.Date `json:"asOf"`
	Total   int        `json:"total"`
	Message string     `json:"message"`
}

func (n *Notifier) Borrowed(b model.Borrowing, book model.Book) {
	ev := BorrowedEvent{
		BookID:             book.ID,
		BookTitle:          book.Title,
		Username:           b.Username,
		ExpectedReturnDate: b.ExpectedReturnDate,
		DailyFee:           book.DailyFee.String(),
		Message: fmt.Sprintf("%s borrowed %s expected return date: %s. Price per day: %s.",
			b.Username, book.Title, b.ExpectedReturnDate.Format("2006-01-02"), book.DailyFee),
	}
	n.enqueue(kafka.BorrowedTopic, ev)
}

func (n *Notifier) OverdueDigest(asOf model.Date, items []model.OverdueBorrowing) {
	msg := "No borrowings overdue today!"
	if len(items) > 0 {
		msg = ""
		for _, item := range items {
			days := item.ExpectedReturnDate.Days(asOf)
			unit := "days"
			if days == 1 {
				unit = "day"
			}
			msg += fmt.Sprintf("%s overdue the book %s for %d %s\n",
				item.Username, item.BookTitle, days, unit)
		}
	}
	n.enqueue(kafka.OverdueDigestTopic, OverdueDigest{
		AsOf:    asOf,
		Total:   len(items),
		Message: msg,
	})
}

func (n *Notifier) enqueue(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.log.Error("notify marshal", zap.String("topic", topic), zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	if _, _, err = n.producer.SendMessage(msg); err != nil {
		n.log.Error("notify enqueue", zap.String("topic", topic), zap.Error(err))
	}
}
