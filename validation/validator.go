package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	FieldEmail   = "email"
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldAddress = "address"
)

const (
	MsgInvalidEmail = "Please enter a valid email address"
	MsgFullName     = "Please enter your full name"
	MsgInvalidPhone = "Please enter a valid phone number"
	MsgRequired     = "Please fill in all required fields"
)

var (
	ErrContactIncomplete = errors.New(MsgRequired)
	ErrContactEmail      = errors.New(MsgInvalidEmail)
	ErrNewsletterEmpty   = errors.New("newsletter email is required")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var fieldMessages = map[string]string{
	FieldEmail: MsgInvalidEmail,
	FieldName:  MsgFullName,
	FieldPhone: MsgInvalidPhone,
}

// CheckoutForm is what the buyer types into the checkout modal.
type CheckoutForm struct {
	Email    string `json:"email" validate:"site_email"`
	FullName string `json:"name" validate:"trimmed_min=3"`
	Phone    string `json:"phone" validate:"trimmed_min=10"`
	Address  string `json:"address"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f CheckoutForm) Trimmed() CheckoutForm {
	return CheckoutForm{
		Email:    strings.TrimSpace(f.Email),
		FullName: strings.TrimSpace(f.FullName),
		Phone:    strings.TrimSpace(f.Phone),
		Address:  strings.TrimSpace(f.Address),
	}
}

type ContactForm struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Service string `json:"service" validate:"required"`
	Message string `json:"message"`
}

// FieldErrors maps a field name to its single error message. A field that is
// absent from the map is valid.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields(), ", "))
}

// Fields returns the invalid field names in sorted order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// ValidEmail reports whether s looks like local-part@domain.tld with no
// whitespace anywhere.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func ValidFullName(s string) bool {
	return trimmedLen(s) >= 3
}

// ValidPhone is a length heuristic, not a phone-number format check.
func ValidPhone(s string) bool {
	return trimmedLen(s) >= 10
}

func trimmedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails on an empty tag or a nil func.
	_ = v.RegisterValidation("site_email", func(fl validator.FieldLevel) bool {
		return ValidEmail(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return trimmedLen(fl.Field().String()) >= n
	})

	return &Validator{validate: v}
}

// Checkout evaluates every field of the form and reports all failures at
// once. It returns nil when the form is valid.
func (v *Validator) Checkout(form CheckoutForm) FieldErrors {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// Struct only returns InvalidValidationError for non-struct input.
		panic(err)
	}

	fieldErrors := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if msg, ok := fieldMessages[fe.Field()]; ok {
			fieldErrors[fe.Field()] = msg
		}
	}
	return fieldErrors
}

// Contact checks the contact form the way the page reports it: one message,
// missing fields first, then the email format.
func (v *Validator) Contact(form ContactForm) error {
	if err := v.validate.Struct(form); err != nil {
		return ErrContactIncomplete
	}
	if !ValidEmail(form.Email) {
		return ErrContactEmail
	}
	return nil
}

func (v *Validator) Newsletter(email string) error {
	if email == "" {
		return ErrNewsletterEmpty
	}
	return nil
}
