package resolver

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Kind
	}{
		{"address", "0xabcdef1234567890abcdef1234567890abcdef12", KindAddress},
		{"address mixed case hex", "0xABCDEF1234567890abcdef1234567890abcdef12", KindAddress},
		{"address too short", "0xabcdef1234567890abcdef1234567890abcdef1", KindUnrecognized},
		{"address too long", "0xabcdef1234567890abcdef1234567890abcdef123", KindUnrecognized},
		{"address non-hex", "0xzzcdef1234567890abcdef1234567890abcdef12", KindUnrecognized},
		{"hex without prefix", "abcdef1234567890abcdef1234567890abcdef12", KindUnrecognized},
		{"ens name", "vitalik.eth", KindENSName},
		{"ens subdomain", "pay.vitalik.eth", KindENSName},
		{"basename", "jesse.base.eth", KindBasename},
		{"bare base.eth", "base.eth", KindENSName},
		{"dotted basename", "a.b.base.eth", KindBasename},
		{"plain word", "vitalik", KindUnrecognized},
		{"empty", "", KindUnrecognized},
		{"other tld", "vitalik.com", KindUnrecognized},
		{"eth suffix only", ".eth", KindENSName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.input); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlatformFor(t *testing.T) {
	if got := platformFor(KindAddress); got != PlatformEthereum {
		t.Errorf("platformFor(KindAddress) = %q, want %q", got, PlatformEthereum)
	}
	if got := platformFor(KindENSName); got != PlatformENS {
		t.Errorf("platformFor(KindENSName) = %q, want %q", got, PlatformENS)
	}
	if got := platformFor(KindBasename); got != PlatformBasenames {
		t.Errorf("platformFor(KindBasename) = %q, want %q", got, PlatformBasenames)
	}
	if got := platformFor(KindUnrecognized); got != "" {
		t.Errorf("platformFor(KindUnrecognized) = %q, want empty", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Vitalik.ETH  "); got != "vitalik.eth" {
		t.Errorf("normalize() = %q, want %q", got, "vitalik.eth")
	}
}
