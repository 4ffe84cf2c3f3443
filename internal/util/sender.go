package util

import (
	"net/mail"
	"strings"
	"time"
)

// Sender is a parsed From header.
type Sender struct {
	Name    string
	Address string // lower-cased, empty if unparsable
}

// ParseSender splits a From header such as `"Acme Billing" <Billing@Acme.com>`
// into a display name and a lower-cased address. When the header has no
// display name the local part is title-cased instead ("jane.doe" -> "Jane Doe").
// Lists are tolerated: the first parsable address wins.
func ParseSender(from string) Sender {
	from = strings.TrimSpace(from)
	if from == "" {
		return Sender{}
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		addr = nil
		for _, p := range strings.Split(from, ",") {
			if a, e := mail.ParseAddress(strings.TrimSpace(p)); e == nil {
				addr = a
				break
			}
		}
	}
	if addr == nil {
		return Sender{Name: strings.Trim(from, `"' `)}
	}

	s := Sender{
		Name:    strings.Trim(strings.TrimSpace(addr.Name), `"'`),
		Address: strings.ToLower(strings.TrimSpace(addr.Address)),
	}
	if s.Name == "" {
		s.Name = nameFromLocalPart(s.Address)
	}
	return s
}

// String renders "Name <address>", or whichever half is known.
func (s Sender) String() string {
	switch {
	case s.Name != "" && s.Address != "":
		return s.Name + " <" + s.Address + ">"
	case s.Address != "":
		return s.Address
	}
	return s.Name
}

func nameFromLocalPart(address string) string {
	at := strings.IndexByte(address, '@')
	if at <= 0 {
		return address
	}
	local := address[:at]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// dateLayouts are the Date header shapes seen in practice.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
}

// DateRFC3339 normalizes a Date header to UTC RFC3339, or "" if unparsable.
func DateRFC3339(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if t, err := mail.ParseDate(h); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, h); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}
