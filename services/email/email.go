// Package emailsvc delivers core.EmailMessage values through a background queue
// and pluggable senders (SMTP, SendGrid, console).
package emailsvc

import (
	"context"

	"github.com/trezcool/ratiba/core"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg core.EmailMessage) error
}

// NewSender returns the Sender configured by conf.Mail.Backend.
func NewSender(conf *core.Config, logger core.Logger) Sender {
	switch conf.Mail.Backend {
	case core.EmailBackendSendgrid:
		return NewSendgridSender(conf)
	case core.EmailBackendConsole:
		return NewConsoleSender(conf, logger)
	default:
		return NewSMTPSender(conf)
	}
}
