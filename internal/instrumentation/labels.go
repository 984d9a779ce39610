package instrumentation

import "strings"

const unknownDomain = "unknown"

// Operation names shared by Google API metrics and spans.
const (
	OperationSend     = "send"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
)

// ExtractUserDomain reduces an address to its lowercased domain so it can be
// used as a label. Anything that is not exactly local@domain maps to "unknown".
func ExtractUserDomain(address string) string {
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return unknownDomain
	}
	return strings.ToLower(domain)
}
