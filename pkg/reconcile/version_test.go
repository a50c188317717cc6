package reconcile

import (
	"testing"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v0.2.5", "0.2.5"},
		{"0.2.5", "0.2.5"},
		{"  v1.0.0\n", "1.0.0"},
		{"V2.1", "2.1"},
		{"v0.2.5-rc1", "0.2.5-rc1"},
		{"vv1", "v1"},
		{"v", ""},
		{"", ""},
		{"nightly", "nightly"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeVersion(tt.input); got != tt.want {
				t.Fatalf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSameVersion(t *testing.T) {
	if !SameVersion("v1.2.3", "1.2.3") {
		t.Fatalf("v-prefixed and bare versions should match")
	}
	if SameVersion("1.2.3", "1.2.4") {
		t.Fatalf("different versions should not match")
	}
	if SameVersion("", "") {
		t.Fatalf("empty versions never match")
	}
}

func TestFormatVersionDisplay(t *testing.T) {
	tests := map[string]string{
		"1.2.3":   "v1.2.3",
		"v1.2.3":  "v1.2.3",
		"nightly": "nightly",
		"":        "(unknown)",
	}
	for in, want := range tests {
		if got := FormatVersionDisplay(in); got != want {
			t.Fatalf("FormatVersionDisplay(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b   string
		want   int
		wantOK bool
	}{
		{"0.2.5", "0.2.5", 0, true},
		{"0.2.4", "v0.2.5", -1, true},
		{"1.0.0", "0.9.9", 1, true},
		{"1.0", "1.0.0", 0, true},
		{"0.2.5-rc1", "0.2.5", -1, true},
		{"0.2.5-rc.10", "0.2.5-rc.2", 1, true},
		{"nightly", "1.0.0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, ok := CompareVersions(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("CompareVersions(%q, %q) ok = %v, want %v", tt.a, tt.b, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"1.2.3", "1.4.0", "upgrade"},
		{"1.4.0", "1.2.3", "downgrade"},
		{"1.2.3", "v1.2.3", "reinstall"},
		{"nightly", "1.2.3", "change"},
	}
	for _, tt := range tests {
		if got := Direction(tt.from, tt.to); got != tt.want {
			t.Fatalf("Direction(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}
