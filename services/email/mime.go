package emailsvc

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// buildMessage encodes msg as a multipart/alternative MIME message.
func buildMessage(from mail.Address, subject string, msg core.EmailMessage, date time.Time) ([]byte, error) {
	var header, parts bytes.Buffer
	altW := multipart.NewWriter(&parts)

	// Write mail header
	_, _ = fmt.Fprintf(&header, "From: %s\r\n", from.String())
	_, _ = fmt.Fprintf(&header, "To: %s\r\n", joinAddresses(msg.To))
	_, _ = fmt.Fprintf(&header, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	_, _ = fmt.Fprintf(&header, "Date: %s\r\n", date.Format(time.RFC1123Z))
	_, _ = fmt.Fprint(&header, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(&header, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	if err := writePart(altW, "text/plain; charset=utf-8", msg.TextContent); err != nil {
		return nil, errors.Wrap(err, "writing text/plain part")
	}
	if msg.HTMLContent != "" {
		if err := writePart(altW, "text/html; charset=utf-8", msg.HTMLContent); err != nil {
			return nil, errors.Wrap(err, "writing text/html part")
		}
	}
	if err := altW.Close(); err != nil {
		return nil, err
	}

	header.Write(parts.Bytes())
	return header.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType, content string) error {
	pw, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qw := quotedprintable.NewWriter(pw)
	if _, err := qw.Write([]byte(content)); err != nil {
		return err
	}
	return qw.Close()
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

func subjectPrefix(appName string) string {
	if appName == "" {
		return ""
	}
	return "[" + appName + "] "
}
