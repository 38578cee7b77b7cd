package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// IDLength is the number of hex characters kept from the digest.
const IDLength = 16

// Anonymize maps a raw client address to a short opaque identifier.
//
// Everything from the first ':' onward is treated as a port and discarded
// before hashing. Literal IPv6 addresses contain several colons and are
// therefore truncated to their first group; two v6 clients sharing that group
// collapse to the same identifier.
func Anonymize(raw string) string {
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// ClientAddress returns the caller address used for like deduplication:
// the first X-Forwarded-For entry when trustForwarded is set and the header
// is present, the transport address otherwise. Only that first entry is
// hashed, not the raw header value, so appended proxy hops do not change the id.
func ClientAddress(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return r.RemoteAddr
}

// FromRequest resolves the anonymized identifier for a request.
func FromRequest(r *http.Request, trustForwarded bool) string {
	return Anonymize(ClientAddress(r, trustForwarded))
}
