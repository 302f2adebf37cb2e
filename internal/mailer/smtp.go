package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPSender relays messages through an authenticated SMTP submission server.
// The generated Message-ID is returned as the provider identifier.
type SMTPSender struct {
	addr   string
	auth   sasl.Client
	signer *DKIMSigner
	now    func() time.Time
}

// NewSMTPSender creates a relay sender. An empty username disables AUTH.
// signer may be nil.
func NewSMTPSender(addr, username, password string, signer *DKIMSigner) *SMTPSender {
	var auth sasl.Client
	if username != "" {
		auth = sasl.NewPlainClient("", username, password)
	}
	return &SMTPSender{
		addr:   addr,
		auth:   auth,
		signer: signer,
		now:    time.Now,
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return "", Permanent(fmt.Errorf("parsing from address: %w", err))
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", Permanent(fmt.Errorf("parsing recipient address: %w", err))
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))

	raw, err := buildMIME(msg, messageID, s.now())
	if err != nil {
		return "", Permanent(err)
	}

	if s.signer != nil {
		raw, err = s.signer.Sign(raw)
		if err != nil {
			return "", Permanent(err)
		}
	}

	err = smtp.SendMail(s.addr, s.auth, from.Address, []string{to.Address}, bytes.NewReader(raw))
	if err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) && smtpErr.Code >= 500 {
			return "", Permanent(fmt.Errorf("smtp: %w", err))
		}
		return "", fmt.Errorf("smtp: %w", err)
	}
	return messageID, nil
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}

// buildMIME renders a single-part HTML message with CRLF line endings.
func buildMIME(msg Message, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	writeHeader("From", msg.From)
	writeHeader("To", msg.To)
	if msg.ReplyTo != "" {
		writeHeader("Reply-To", msg.ReplyTo)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", date.Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/html; charset=UTF-8")
	writeHeader("Content-Transfer-Encoding", "quoted-printable")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ContainsAny(k+msg.Headers[k], "\r\n") {
			return nil, fmt.Errorf("header %q contains a line break", k)
		}
		writeHeader(k, msg.Headers[k])
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	return buf.Bytes(), nil
}
