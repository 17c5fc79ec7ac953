package ezlist

import "regexp"

// unknownSender is the placeholder used when no address can be extracted
// from the From header.
const unknownSender = "unknown"

// addressPattern is the deliberately narrow address grammar used for every
// extraction and comparison in the manager. Downstream matching (exclusion
// sets, list-address detection) depends on byte-for-byte identical
// extraction, so this must not be replaced by a stricter or looser parser.
var addressPattern = regexp.MustCompile(`[\w.%+-]+@[\w.%+-]+`)

// extractAddresses returns every address-shaped token in a header value.
// A missing header (empty value) yields nil.
func extractAddresses(headerValue string) []string {
	if headerValue == "" {
		return nil
	}
	return addressPattern.FindAllString(headerValue, -1)
}

// isAddress reports whether s is a single well-formed address under the
// manager's grammar.
func isAddress(s string) bool {
	return addressPattern.FindString(s) == s && s != ""
}

// senderAddress returns the first address in the From header, or the
// "unknown" placeholder when none can be found.
func senderAddress(msg *Message) string {
	addrs := extractAddresses(msg.Header.Get("From"))
	if len(addrs) == 0 {
		return unknownSender
	}
	return addrs[0]
}
