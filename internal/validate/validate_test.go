package validate

import "testing"

func TestIsValidIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "ipv4", in: "192.168.0.1", want: true},
		{name: "ipv4 with spaces", in: " 10.0.0.1 ", want: true},
		{name: "ipv6 loopback", in: "::1", want: true},
		{name: "ipv6 full", in: "2001:db8::8a2e:370:7334", want: true},
		{name: "empty", in: "", want: false},
		{name: "octet out of range", in: "256.1.1.1", want: false},
		{name: "hostname", in: "example.com", want: false},
		{name: "cidr", in: "10.0.0.0/8", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidIP(tt.in); got != tt.want {
				t.Errorf("IsValidIP(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port int
		want bool
	}{
		{port: -1, want: false},
		{port: 0, want: true},
		{port: 22, want: true},
		{port: 65535, want: true},
		{port: 65536, want: false},
		{port: 70000, want: false},
	}

	for _, tt := range tests {
		if got := IsValidPort(tt.port); got != tt.want {
			t.Errorf("IsValidPort(%d) = %v, want %v", tt.port, got, tt.want)
		}
	}
}

func TestIsValidDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{in: "example.com", want: true},
		{in: "mail.example.co.uk", want: true},
		{in: "localhost", want: false},
		{in: "exa mple.com", want: false},
		{in: "example.c0m", want: false},
	}

	for _, tt := range tests {
		if got := IsValidDomain(tt.in); got != tt.want {
			t.Errorf("IsValidDomain(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
