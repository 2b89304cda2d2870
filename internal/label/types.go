// Package label translates the controller's container-label namespace into typed proxy and stream
// configurations, one per declared index (§3, §4.1, §6).
package label

const (
	// Prefix is the reserved label namespace prefix. Both "npm." and "npm-" are recognized as synonyms,
	// with the remainder of the key hierarchy separated by the same character used after the prefix.
	Prefix = "npm"

	// MinIndex and MaxIndex bound the proxy/stream index segment accepted in a label key (§4.1).
	MinIndex = 0
	MaxIndex = 99
)

// BoolDefaults are the process-wide defaults for the seven proxy boolean flags, overridable via
// *_DEFAULT environment variables (§6). BlockExploits defaults to true; the rest default to false.
type BoolDefaults struct {
	SSLForced        bool
	CachingEnabled   bool
	BlockExploits    bool
	WebsocketUpgrade bool
	HTTP2            bool
	HSTS             bool
	HSTSSubdomains   bool
}

// DefaultBoolDefaults returns the baseline defaults from §3: every flag false except BlockExploits.
func DefaultBoolDefaults() BoolDefaults {
	return BoolDefaults{BlockExploits: true}
}

// ProxyConfig is a single (container, index) HTTP proxy host declaration parsed from labels (§3).
type ProxyConfig struct {
	Index   int
	Domains []string

	ForwardScheme string
	ForwardHost   string
	// ForwardPort is nil when absent from labels and must be inferred by the caller.
	ForwardPort *int

	SSLForced        bool
	CachingEnabled   bool
	BlockExploits    bool
	WebsocketUpgrade bool
	HTTP2            bool
	HSTS             bool
	HSTSSubdomains   bool

	CertificateID  *int
	AccessListID   *int
	AdvancedConfig string
}

// StreamConfig is a single (container, index) TCP/UDP stream declaration parsed from labels (§3).
type StreamConfig struct {
	Index int

	IncomingPort int
	ForwardHost  string
	// ForwardPort is nil when absent from labels and must be inferred by the caller.
	ForwardPort *int

	TCPForwarding bool
	UDPForwarding bool

	// SSLCertificate is the raw label value: a numeric certificate id or a domain to resolve later.
	SSLCertificate string
}
