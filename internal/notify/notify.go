// Package notify builds the WhatsApp deep links exchanged between the shop
// and its customers. Nothing is sent from the server.
package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
)

// NormalizeDigits maps Arabic-Indic and Eastern Arabic digits to ASCII.
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// NormalizePhone keeps only the digits of a phone number as typed by a customer.
func NormalizePhone(s string) string {
	s = NormalizeDigits(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InternationalPhone prefixes the country code unless the number already carries it.
func InternationalPhone(phone, countryCode string) string {
	phone = strings.TrimLeft(NormalizePhone(phone), "0")
	if countryCode == "" || strings.HasPrefix(phone, countryCode) {
		return phone
	}
	return countryCode + phone
}

type Composer struct {
	ShopName    string
	ShopPhone   string
	CountryCode string
	Deposit     decimal.Decimal
	Location    *time.Location
}

func (c Composer) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func link(phone, text string) string {
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(text)
}

// DepositRequest is the message a customer sends to the shop after booking,
// with the deposit transfer receipt attached.
func (c Composer) DepositRequest(appt domain.Appointment) string {
	start := appt.StartTime.In(c.loc())
	var b strings.Builder
	fmt.Fprintf(&b, "Greetings from %s\n", c.ShopName)
	b.WriteString("I have requested an appointment\n\n")
	fmt.Fprintf(&b, "Name: %s\n", appt.Name)
	fmt.Fprintf(&b, "Services: %s\n", appt.Service)
	fmt.Fprintf(&b, "Date: %s\n", start.Format(domain.DateLayout))
	fmt.Fprintf(&b, "Time: %s\n", start.Format(domain.ClockLayout))
	fmt.Fprintf(&b, "Total: %s BD\n\n", appt.Price.StringFixed(3))
	if c.Deposit.IsPositive() {
		fmt.Fprintf(&b, "Attached is the deposit transfer receipt (%s BD) to confirm the appointment.\n", c.Deposit.StringFixed(3))
	}
	b.WriteString("Thank you")
	return link(InternationalPhone(c.ShopPhone, c.CountryCode), b.String())
}

// Confirmation is the message the shop sends once the deposit arrived.
func (c Composer) Confirmation(appt domain.Appointment) string {
	start := appt.StartTime.In(c.loc())
	text := fmt.Sprintf("Confirmed\nDear %s, we received your deposit and your appointment is confirmed.\nWe expect you on %s at %s.\n\nThank you for choosing %s.",
		appt.Name, start.Format(domain.DateLayout), start.Format(domain.ClockLayout), c.ShopName)
	return link(InternationalPhone(appt.Phone, c.CountryCode), text)
}
