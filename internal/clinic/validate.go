package clinic

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail        = errors.New("email must contain '@' and '.'")
	ErrInvalidGender       = errors.New("gender must be Male, Female or Other")
	ErrMissingName         = errors.New("name is required")
	ErrInvalidTimeOrder    = errors.New("end must be strictly after start")
	ErrInvalidInvoiceDates = errors.New("due date must not precede issue date")
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNonPositiveDuration = errors.New("duration must be positive")
	ErrEmptyInvoice        = errors.New("invoice needs at least one item")
)

// Mirrors the schema check: something before '@', a '.' somewhere after it.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func (p *Patient) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	switch p.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return ErrInvalidGender
	}
	return ValidateEmail(p.Email)
}

func (d *Doctor) Validate() error {
	if d.Name == "" || d.LicenseNumber == "" {
		return ErrMissingName
	}
	return ValidateEmail(d.Email)
}

func (s *Staff) Validate() error {
	if s.Name == "" || s.Role == "" {
		return ErrMissingName
	}
	if s.Email != nil {
		return ValidateEmail(*s.Email)
	}
	return nil
}

func (d *Department) Validate() error {
	if d.Name == "" {
		return ErrMissingName
	}
	return nil
}

func (t *AppointmentType) Validate() error {
	if t.Name == "" {
		return ErrMissingName
	}
	if t.DurationMinutes <= 0 {
		return ErrNonPositiveDuration
	}
	return nil
}

func (a *Appointment) Validate() error {
	if !a.EndDatetime.After(a.ScheduledDatetime) {
		return ErrInvalidTimeOrder
	}
	return nil
}

func (inv *Invoice) Validate() error {
	if inv.DueDate.Before(inv.IssueDate) {
		return ErrInvalidInvoiceDates
	}
	if len(inv.Items) == 0 {
		return ErrEmptyInvoice
	}
	for i := range inv.Items {
		if inv.Items[i].Quantity <= 0 {
			return ErrNonPositiveQuantity
		}
	}
	return nil
}
