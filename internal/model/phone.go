package model

import (
	"fmt"
	"strings"
)

var (
	ErrInvalidPhoneNumber = fmt.Errorf("invalid north american phone number")
)

// PhoneNumber is a validated North-American number held in E.164 form
// (+1 followed by area code, exchange and line). The zero value is invalid;
// build one through NewPhoneNumber or ParsePhoneNumber.
type PhoneNumber struct {
	area     string
	exchange string
	line     string
}

// NewPhoneNumber validates the three NANP sub-parts: area and exchange are
// three digits starting with 2-9, the line number is four digits.
func NewPhoneNumber(area, exchange, line string) (PhoneNumber, error) {
	if !validNPA(area) || !validNPA(exchange) || !digits(line, 4) {
		return PhoneNumber{}, ErrInvalidPhoneNumber
	}
	return PhoneNumber{area: area, exchange: exchange, line: line}, nil
}

// ParsePhoneNumber accepts E.164 text ("+15551234567") or a bare 10-digit
// string, tolerating common separators.
func ParsePhoneNumber(s string) (PhoneNumber, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	clean = strings.TrimPrefix(clean, "+1")
	clean = strings.TrimPrefix(clean, "1")
	if len(clean) != 10 {
		return PhoneNumber{}, ErrInvalidPhoneNumber
	}
	return NewPhoneNumber(clean[0:3], clean[3:6], clean[6:10])
}

func validNPA(s string) bool {
	return digits(s, 3) && s[0] >= '2' && s[0] <= '9'
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (p PhoneNumber) Area() string     { return p.area }
func (p PhoneNumber) Exchange() string { return p.exchange }
func (p PhoneNumber) Line() string     { return p.line }

func (p PhoneNumber) IsZero() bool { return p.area == "" }

// String renders the persisted and compared E.164 form.
func (p PhoneNumber) String() string {
	return "+1" + p.area + p.exchange + p.line
}
