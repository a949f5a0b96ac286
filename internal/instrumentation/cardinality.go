package instrumentation

import "strings"

// ExtractUserDomain reduces an account email to its domain for metric labels.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if _, domain, ok := strings.Cut(email, "@"); ok && domain != "" && !strings.Contains(domain, "@") {
		return domain
	}
	return "unknown"
}

// Operation types for Google API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
	OperationUserinfo = "userinfo"
)
