package resolver

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind classifies a raw identifier string.
type Kind int

const (
	// KindUnrecognized is anything that is not an address or a known name
	KindUnrecognized Kind = iota
	// KindAddress is 0x followed by 40 hex characters
	KindAddress
	// KindENSName ends with .eth but not .base.eth
	KindENSName
	// KindBasename ends with .base.eth
	KindBasename
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindENSName:
		return "ens"
	case KindBasename:
		return "basename"
	default:
		return "unrecognized"
	}
}

const (
	ensSuffix      = ".eth"
	basenameSuffix = ".base.eth"
)

// Classify maps an already-normalized (trimmed, lowercased) identifier to
// its kind. Pure and deterministic.
func Classify(input string) Kind {
	// IsHexAddress alone also accepts unprefixed hex, so require the prefix
	if strings.HasPrefix(input, "0x") && common.IsHexAddress(input) {
		return KindAddress
	}
	if strings.HasSuffix(input, basenameSuffix) {
		return KindBasename
	}
	if strings.HasSuffix(input, ensSuffix) {
		return KindENSName
	}
	return KindUnrecognized
}

// platformFor maps a name kind to the platform recorded on its result.
func platformFor(k Kind) Platform {
	switch k {
	case KindAddress:
		return PlatformEthereum
	case KindENSName:
		return PlatformENS
	case KindBasename:
		return PlatformBasenames
	default:
		return ""
	}
}

// isAddress reports whether s is a valid 0x-prefixed address string.
func isAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// normalize trims surrounding whitespace and lowercases an identifier.
// Normalized form is the cache key.
func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
