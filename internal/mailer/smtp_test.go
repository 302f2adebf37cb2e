package mailer

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIME(t *testing.T) {
	msg := Message{
		From:    "The Trust <duyuru@papemosque.ca>",
		To:      "ayse@example.com",
		ReplyTo: "duyuru@papecami.com",
		Subject: "Cuma Duyurusu",
		HTML:    "<p>Merhaba Ayşe</p>",
		Headers: map[string]string{
			"List-Unsubscribe":      "<https://papemosque.ca/api/unsubscribe?email=ayse%40example.com>",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}
	date := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

	raw, err := buildMIME(msg, "<id-1@papemosque.ca>", date)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\r\n\r\n", "headers and body must be CRLF separated")

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "ayse@example.com", parsed.Header.Get("To"))
	assert.Equal(t, "duyuru@papecami.com", parsed.Header.Get("Reply-To"))
	assert.Equal(t, "<id-1@papemosque.ca>", parsed.Header.Get("Message-ID"))
	assert.Equal(t, "List-Unsubscribe=One-Click", parsed.Header.Get("List-Unsubscribe-Post"))
	assert.Equal(t, "text/html; charset=UTF-8", parsed.Header.Get("Content-Type"))

	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	require.NoError(t, err)
	assert.Equal(t, "<p>Merhaba Ayşe</p>", string(body))
}

func TestBuildMIME_RejectsHeaderInjection(t *testing.T) {
	_, err := buildMIME(Message{
		From:    "a@example.com",
		To:      "b@example.com",
		Headers: map[string]string{"X-Evil": "x\r\nBcc: victim@example.com"},
	}, "<id@example.com>", time.Now())
	assert.Error(t, err)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "papemosque.ca", domainOf("duyuru@papemosque.ca"))
	assert.Equal(t, "localhost", domainOf("nobody"))
}

func TestSMTPSender_InvalidRecipientIsPermanent(t *testing.T) {
	s := NewSMTPSender("127.0.0.1:1", "", "", nil)
	_, err := s.Send(t.Context(), Message{From: "duyuru@papemosque.ca", To: "not an address"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestDKIMSigner_Sign(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := NewDKIMSigner(key, "papemosque.ca", "default")

	raw, err := buildMIME(Message{
		From: "duyuru@papemosque.ca", To: "a@example.com", Subject: "s", HTML: "<p>x</p>",
	}, "<id@papemosque.ca>", time.Now())
	require.NoError(t, err)

	signed, err := signer.Sign(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(signed), "DKIM-Signature:"))
	assert.Contains(t, string(signed), "d=papemosque.ca")
	assert.Contains(t, string(signed), "s=default")
}
