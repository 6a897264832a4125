package emailsvc

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// ConsoleSender writes messages to the logger instead of sending them. Meant for development.
type ConsoleSender struct {
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ Sender = (*ConsoleSender)(nil)

func NewConsoleSender(conf *core.Config, logger core.Logger) *ConsoleSender {
	return &ConsoleSender{
		from:       conf.Mail.DefaultFromEmail,
		subjPrefix: subjectPrefix(conf.AppName),
		logger:     logger,
	}
}

func (s *ConsoleSender) Send(_ context.Context, msg core.EmailMessage) error {
	data, err := buildMessage(s.from, s.subjPrefix+msg.Subject, msg, time.Now())
	if err != nil {
		return errors.Wrap(err, "building message")
	}
	s.logger.Info("email\n" + string(data))
	return nil
}
