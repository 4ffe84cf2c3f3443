package util

import "testing"

func TestParseSender(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantAddr string
	}{
		{`Acme Billing <Billing@Acme.COM>`, "Acme Billing", "billing@acme.com"},
		{`"Acme" <billing@acme.com>`, "Acme", "billing@acme.com"},
		{`jane.doe+invoices@example.com`, "Jane Doe", "jane.doe+invoices@example.com"},
		{`"A" <not-an-email> , "B" <c@D.com>`, "B", "c@d.com"}, // list fallback picks first valid
		{`bad address`, "bad address", ""},
		{``, "", ""},
	}
	for _, tc := range tests {
		got := ParseSender(tc.in)
		if got.Name != tc.wantName || got.Address != tc.wantAddr {
			t.Errorf("ParseSender(%q) = %+v; want name=%q addr=%q", tc.in, got, tc.wantName, tc.wantAddr)
		}
	}
}

func TestSenderString(t *testing.T) {
	if got := ParseSender(`Acme <a@acme.com>`).String(); got != "Acme <a@acme.com>" {
		t.Errorf("got %q", got)
	}
	if got := (Sender{Address: "a@acme.com"}).String(); got != "a@acme.com" {
		t.Errorf("got %q", got)
	}
}

func TestDateRFC3339(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tue, 2 Jan 2024 15:04:05 +0100", "2024-01-02T14:04:05Z"},
		{"Tue, 2 Jan 2024 15:04:05 +0000 (UTC)", "2024-01-02T15:04:05Z"},
		{"2024-01-02T15:04:05Z", "2024-01-02T15:04:05Z"},
		{"yesterday", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := DateRFC3339(tc.in); got != tc.want {
			t.Errorf("DateRFC3339(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
