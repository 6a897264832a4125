package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// RollbarLogger prints through a std logger and reports every entry to Rollbar.
// Rollbar is only enabled when a token is configured.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Named returns a logger writing to the same output under another prefix, e.g. "DB : ".
func (l *RollbarLogger) Named(prefix string) *RollbarLogger {
	return &RollbarLogger{
		std:   log.New(l.std.Writer(), prefix, l.std.Flags()),
		debug: l.debug,
	}
}

// report strips the acting user out of args and sets it as the rollbar person.
// args: error, map[string]interface{}, user.User, anything else is sent as is.
func report(level, msg string, args []interface{}) {
	items := make([]interface{}, 0, len(args)+1)
	items = append(items, msg)
	var person *user.User
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			if person == nil {
				person = &usr
			}
			continue
		}
		items = append(items, arg)
	}
	if person != nil {
		rollbar.SetPerson(strconv.FormatInt(person.ID, 10), person.Name, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, items...)
}

// format renders msg followed by args on one line: fields as sorted key=value pairs,
// errors with their stack, the acting user by id only.
func format(msg string, args []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, arg := range args {
		b.WriteString(" | ")
		switch v := arg.(type) {
		case user.User:
			fmt.Fprintf(&b, "user: %d", v.ID)
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for i, k := range keys {
				if i > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%s=%v", k, v[k])
			}
		case error:
			fmt.Fprintf(&b, "%+v", v)
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

func (l *RollbarLogger) emit(level, msg string, args []interface{}) {
	report(level, msg, args)
	_ = l.std.Output(3, format(msg, args))
}

// Debug entries are dropped unless DEBUG is set.
func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit(rollbar.DEBUG, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.emit(rollbar.INFO, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.emit(rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.emit(rollbar.ERR, msg, args)
}

// Fatal reports msg, flushes Rollbar and exits.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.emit(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}

// Wait blocks until queued Rollbar items are sent.
func (l *RollbarLogger) Wait() {
	rollbar.Wait()
}
