package emailsvc

import (
	"context"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var sendMailFunc = smtp.SendMail // mockable

// SMTPSender delivers messages through an SMTP relay, upgrading to TLS with STARTTLS when offered.
type SMTPSender struct {
	addr       string
	auth       smtp.Auth
	from       mail.Address
	subjPrefix string
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(conf *core.Config) *SMTPSender {
	return &SMTPSender{
		addr:       net.JoinHostPort(conf.Mail.SMTPHost, strconv.Itoa(conf.Mail.SMTPPort)),
		auth:       smtp.PlainAuth("", conf.Mail.SMTPUser, conf.Mail.SMTPPassword, conf.Mail.SMTPHost),
		from:       conf.Mail.DefaultFromEmail,
		subjPrefix: subjectPrefix(conf.AppName),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg core.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := buildMessage(s.from, s.subjPrefix+msg.Subject, msg, time.Now())
	if err != nil {
		return errors.Wrap(err, "building message")
	}
	if err := sendMailFunc(s.addr, s.auth, s.from.Address, msg.Recipients(), data); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}
