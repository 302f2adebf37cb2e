package api

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/papemosque/community-api/internal/domain"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var phonePattern = regexp.MustCompile(`^[0-9+\-\s()]*$`)

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validateSubscribe(req *domain.CreateSubscriberRequest) []FieldError {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	var errs []FieldError

	switch n := utf8.RuneCountInString(req.Name); {
	case n < 2:
		errs = append(errs, FieldError{"name", "Name must be at least 2 characters"})
	case n > 25:
		errs = append(errs, FieldError{"name", "Name is too long"})
	}

	switch {
	case !validEmail(req.Email):
		errs = append(errs, FieldError{"email", "Invalid email address"})
	case len(req.Email) > 30:
		errs = append(errs, FieldError{"email", "Email is too long"})
	}

	if req.Phone != "" {
		switch {
		case len(req.Phone) < 10:
			errs = append(errs, FieldError{"phone", "Phone number must be at least 10 digits"})
		case len(req.Phone) > 20:
			errs = append(errs, FieldError{"phone", "Phone number is too long"})
		case !phonePattern.MatchString(req.Phone):
			errs = append(errs, FieldError{"phone", "Invalid phone number format"})
		}
	}

	return errs
}

func validateUpdate(req *domain.UpdateSubscriberRequest) []FieldError {
	var errs []FieldError

	if req.Name != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*req.Name)); n < 2 || n > 25 {
			errs = append(errs, FieldError{"name", "Name must be between 2 and 25 characters"})
		}
	}
	if req.Email != nil && !validEmail(*req.Email) {
		errs = append(errs, FieldError{"email", "Invalid email address"})
	}
	if req.Phone != nil && *req.Phone != "" && !phonePattern.MatchString(*req.Phone) {
		errs = append(errs, FieldError{"phone", "Invalid phone number format"})
	}
	if req.Status != nil && !req.Status.Valid() {
		errs = append(errs, FieldError{"status", "Status must be active, inactive or unsubscribed"})
	}

	return errs
}

func validateMessage(subject, title, description string) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(subject) == "" {
		errs = append(errs, FieldError{"subject", "Subject is required"})
	}
	if strings.TrimSpace(title) == "" {
		errs = append(errs, FieldError{"title", "Title is required"})
	}
	if strings.TrimSpace(description) == "" {
		errs = append(errs, FieldError{"description", "Description is required"})
	}
	return errs
}
