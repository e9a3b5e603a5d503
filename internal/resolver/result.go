// Package resolver maps web3 identifiers (raw addresses, ENS names, Base
// names) to blockchain addresses, minimizing upstream traffic through
// caching, deduplication, and batching.
package resolver

// Platform identifies the namespace a result was resolved through.
type Platform string

const (
	PlatformEthereum  Platform = "ethereum"
	PlatformENS       Platform = "ens"
	PlatformBasenames Platform = "basenames"
)

// Result is the outcome of resolving one identifier. The zero value is a
// confirmed-unresolved result: the input was looked up and nothing was
// found, which is a cacheable outcome distinct from "not yet looked up".
// Address and Platform are always set together.
type Result struct {
	// Address is the lowercase 0x-prefixed 20-byte hex address, or empty
	Address string `json:"address,omitempty"`

	// Platform is ethereum, ens, or basenames, or empty
	Platform Platform `json:"platform,omitempty"`

	// DisplayName is the normalized input when a name resolved, else empty
	DisplayName string `json:"displayName,omitempty"`
}

// Resolved reports whether the identifier resolved to an address.
func (r Result) Resolved() bool {
	return r.Address != ""
}
