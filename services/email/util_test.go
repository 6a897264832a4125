package emailsvc

import (
	"context"
	"fmt"
	"net/mail"
	"sync"

	"github.com/trezcool/ratiba/core"
)

type logEntry struct {
	level string
	msg   string
	args  []interface{}
}

type recLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recLogger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recLogger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *recLogger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *recLogger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *recLogger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *recLogger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *recLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	sent  []core.EmailMessage
	errs  []error // returned in order, then nil
}

func (s *fakeSender) Send(_ context.Context, msg core.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) stats() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, len(s.sent)
}

func testConfig() *core.Config {
	return &core.Config{
		AppName: "Ratiba",
		Mail: core.MailConfig{
			DefaultFromEmail: mail.Address{Name: "Ratiba", Address: "no-reply@ratiba.test"},
			SMTPHost:         "smtp.ratiba.test",
			SMTPPort:         587,
			SMTPUser:         "user",
			SMTPPassword:     "pass",
			SendgridAPIKey:   "key",
			Workers:          2,
			QueueSize:        10,
			MaxTries:         3,
		},
	}
}

func newMessage(i int) *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "Awe", Address: fmt.Sprintf("awe%d@test.cd", i)}},
		Subject: "Hello",
		BodyStr: "hello there",
	}
}
