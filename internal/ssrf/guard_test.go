package ssrf

import (
	"context"
	"errors"
	"net"
	"testing"
)

// fakeResolver answers per network family so tests can model split-family and
// failing lookups.
type fakeResolver struct {
	answers map[string][]net.IP
	errs    map[string]error
}

func (f *fakeResolver) LookupIP(_ context.Context, network, _ string) ([]net.IP, error) {
	if err, ok := f.errs[network]; ok {
		return nil, err
	}
	return f.answers[network], nil
}

func TestCheckPublicAllPublicAddresses(t *testing.T) {
	guard := New(&fakeResolver{answers: map[string][]net.IP{
		"ip4": {net.ParseIP("93.184.216.34")},
		"ip6": {net.ParseIP("2606:2800:220:1:248:1893:25c8:1946")},
	}}, nil)

	if !guard.CheckPublic(context.Background(), "example.com") {
		t.Fatalf("expected public hostname to pass")
	}
}

func TestCheckPublicRejectsNonPublicAddresses(t *testing.T) {
	cases := []struct {
		name string
		addr string
	}{
		{"loopback", "127.0.0.1"},
		{"private 10", "10.1.2.3"},
		{"private 172", "172.16.0.1"},
		{"private 192", "192.168.1.1"},
		{"link-local", "169.254.169.254"},
		{"multicast", "224.0.1.1"},
		{"multicast high", "239.255.255.250"},
		{"cgnat", "100.64.0.1"},
		{"reserved class e", "240.0.0.1"},
		{"unspecified", "0.0.0.0"},
		{"v6 loopback", "::1"},
		{"v6 unique-local", "fd00::1"},
		{"v6 link-local", "fe80::1"},
		{"v6 multicast", "ff0e::1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			guard := New(&fakeResolver{answers: map[string][]net.IP{
				"ip4": {net.ParseIP(tc.addr)},
			}}, nil)
			if guard.CheckPublic(context.Background(), "host.example") {
				t.Fatalf("expected %s to be rejected", tc.addr)
			}
		})
	}
}

func TestCheckPublicRejectsMixedAnswerSet(t *testing.T) {
	// A public decoy mixed with an internal target must reject the hostname.
	guard := New(&fakeResolver{answers: map[string][]net.IP{
		"ip4": {net.ParseIP("93.184.216.34"), net.ParseIP("10.0.0.1")},
	}}, nil)

	if guard.CheckPublic(context.Background(), "decoy.example") {
		t.Fatalf("expected mixed answer set to be rejected")
	}
}

func TestCheckPublicIgnoresSingleFamilyFailure(t *testing.T) {
	guard := New(&fakeResolver{
		answers: map[string][]net.IP{"ip4": {net.ParseIP("93.184.216.34")}},
		errs:    map[string]error{"ip6": errors.New("no AAAA records")},
	}, nil)

	if !guard.CheckPublic(context.Background(), "v4only.example") {
		t.Fatalf("expected v4-only hostname to pass despite v6 failure")
	}
}

func TestCheckPublicFallsBackToAnyFamilyLookup(t *testing.T) {
	guard := New(&fakeResolver{
		answers: map[string][]net.IP{"ip": {net.ParseIP("93.184.216.34")}},
		errs: map[string]error{
			"ip4": errors.New("resolver unavailable"),
			"ip6": errors.New("resolver unavailable"),
		},
	}, nil)

	if !guard.CheckPublic(context.Background(), "fallback.example") {
		t.Fatalf("expected fallback lookup to pass for public address")
	}
}

func TestCheckPublicFailsClosedOnEmptyResolution(t *testing.T) {
	guard := New(&fakeResolver{errs: map[string]error{
		"ip4": errors.New("nxdomain"),
		"ip6": errors.New("nxdomain"),
		"ip":  errors.New("nxdomain"),
	}}, nil)

	if guard.CheckPublic(context.Background(), "nxdomain.example") {
		t.Fatalf("expected resolution failure to fail closed")
	}
}

func TestCheckPublicRejectsEmptyHostname(t *testing.T) {
	guard := New(&fakeResolver{}, nil)
	if guard.CheckPublic(context.Background(), "") {
		t.Fatalf("expected empty hostname to be rejected")
	}
}

func TestCheckPublicRejectsMappedPrivateAddress(t *testing.T) {
	guard := New(&fakeResolver{answers: map[string][]net.IP{
		"ip6": {net.ParseIP("::ffff:192.168.0.10")},
	}}, nil)

	if guard.CheckPublic(context.Background(), "mapped.example") {
		t.Fatalf("expected v4-mapped private address to be rejected")
	}
}
