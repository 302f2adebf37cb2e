// Package mailer submits rendered messages to a transactional email provider.
package mailer

import (
	"context"
	"errors"
)

// Message is one fully rendered email for a single recipient.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Headers map[string]string
}

// Sender submits a message to a delivery provider and returns the
// provider-assigned message identifier.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
	Name() string
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
