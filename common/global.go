package common

// Application metadata.
const (
	AppName    = "tcdconnect"
	AppVersion = "0.2.0"
	AppAuthor  = "HON95"
)

// PrometheusNamespace - Prometheus metrics namespace.
const PrometheusNamespace = "tcdconnect"

// PasswordField - Key added to every connected session record, holding the secret used to connect.
// The secret is stored in plaintext.
const PasswordField = "__pass__"
