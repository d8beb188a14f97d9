package gateway

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"root", "/", "/", false},
		{"simple", "/foo", "/foo", false},
		{"trailing slash", "/foo/", "/foo", false},
		{"double trailing slash", "/foo//", "/foo", false},
		{"percent encoded", "/fo%6f", "/foo", false},
		{"empty", "", "", true},
		{"no leading slash", "foo", "", true},
		{"query string", "/foo?bar=1", "", true},
		{"fragment", "/foo#bar", "", true},
		{"bad percent encoding", "/%zz", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizePath(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("normalizePath(%q) = %q, nil; want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizePath(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePath_Idempotent(t *testing.T) {
	a, err := normalizePath("/foo/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := normalizePath("/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("normalize(%q)=%q != normalize(%q)=%q", "/foo/", a, "/foo", b)
	}
}
