package emailsvc

import (
	"context"
	"errors"
	"net/http"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
)

func TestBuildMessage(t *testing.T) {
	conf := testConfig()
	msg := core.EmailMessage{
		To:          newMessage(1).To,
		TextContent: "plain body",
		HTMLContent: "<p>html body</p>",
	}
	data, err := buildMessage(conf.Mail.DefaultFromEmail, "[Ratiba] Verify your email address", msg, time.Now())
	require.NoError(t, err)

	out := string(data)
	for _, want := range []string{
		`From: "Ratiba" <no-reply@ratiba.test>`,
		`To: "Awe" <awe1@test.cd>`,
		"Subject: [Ratiba] Verify your email address",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
		"plain body",
		"<p>html body</p>",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSMTPSender_Send(t *testing.T) {
	origSendMail := sendMailFunc
	defer func() { sendMailFunc = origSendMail }()

	var gotAddr, gotFrom string
	var gotTo []string
	var gotData []byte
	sendMailFunc = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotData = addr, from, to, msg
		return nil
	}

	msg := *newMessage(1)
	msg.TextContent = msg.BodyStr
	err := NewSMTPSender(testConfig()).Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "smtp.ratiba.test:587", gotAddr)
	assert.Equal(t, "no-reply@ratiba.test", gotFrom)
	assert.Equal(t, []string{"awe1@test.cd"}, gotTo)
	assert.True(t, strings.Contains(string(gotData), "Subject: [Ratiba] Hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewSMTPSender(testConfig()).Send(ctx, msg))
}

func TestSendgridSender_Send(t *testing.T) {
	origAPI := sendgridAPIFunc
	defer func() { sendgridAPIFunc = origAPI }()

	tests := []struct {
		name          string
		status        int
		apiErr        error
		wantErr       bool
		wantPermanent bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true, wantPermanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
		{name: "network error", apiErr: errors.New("dial tcp: timeout"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq rest.Request
			sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
				gotReq = req
				if tt.apiErr != nil {
					return nil, tt.apiErr
				}
				return &rest.Response{StatusCode: tt.status, Body: "{}"}, nil
			}

			msg := *newMessage(1)
			msg.TextContent = msg.BodyStr
			err := NewSendgridSender(testConfig()).Send(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			var perm *backoff.PermanentError
			assert.Equal(t, tt.wantPermanent, errors.As(err, &perm))
			assert.Equal(t, rest.Post, gotReq.Method)
			assert.Contains(t, string(gotReq.Body), "awe1@test.cd")
			assert.Contains(t, string(gotReq.Body), "[Ratiba] Hello")
		})
	}
}

func TestConsoleSender_Send(t *testing.T) {
	logger := new(recLogger)
	msg := *newMessage(1)
	msg.TextContent = msg.BodyStr
	require.NoError(t, NewConsoleSender(testConfig(), logger).Send(context.Background(), msg))

	require.Len(t, logger.entries, 1)
	assert.Contains(t, logger.entries[0].msg, "hello there")
}

func TestNewSender(t *testing.T) {
	conf := testConfig()
	for backend, want := range map[string]interface{}{
		core.EmailBackendSMTP:     &SMTPSender{},
		core.EmailBackendSendgrid: &SendgridSender{},
		core.EmailBackendConsole:  &ConsoleSender{},
	} {
		conf.Mail.Backend = backend
		assert.IsType(t, want, NewSender(conf, new(recLogger)), backend)
	}
}
