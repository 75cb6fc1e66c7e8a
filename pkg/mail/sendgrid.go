package mail

import (
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/pkg/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Message is a plain outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Sender delivers messages. Implementations must not block the caller on
// delivery failures; payment processing never depends on email delivery.
type Sender interface {
	Send(msg Message)
}

// SendgridSender sends mail through the SendGrid v3 API.
type SendgridSender struct {
	key    string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgridSender constructs a SendGrid-backed sender.
func NewSendgridSender(cfg config.MailConfig, logger *zap.Logger) *SendgridSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridSender{
		key:    cfg.SendgridKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

// Send delivers the message asynchronously and logs failures.
func (s *SendgridSender) Send(msg Message) {
	go func() {
		m := sgmail.NewSingleEmail(s.from, msg.Subject, sgmail.NewEmail(msg.ToName, msg.ToAddress), msg.Body, "")

		req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
		req.Method = http.MethodPost
		req.Body = sgmail.GetRequestBody(m)

		res, err := sendgrid.API(req)
		if err != nil {
			s.logger.Error("sending email", zap.Error(err))
			return
		}
		if res.StatusCode >= http.StatusBadRequest {
			s.logger.Error("sending email", zap.Int("status", res.StatusCode), zap.String("body", res.Body))
		}
	}()
}

// NopSender discards messages; used when mail delivery is disabled.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(Message) {}
