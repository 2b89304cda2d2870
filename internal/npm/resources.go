package npm

// ProxyHost is the proxy-manager's representation of an HTTP reverse-proxy host (§3, §6).
type ProxyHost struct {
	ID             int      `json:"id,omitempty"`
	DomainNames    []string `json:"domain_names"`
	ForwardScheme  string   `json:"forward_scheme"`
	ForwardHost    string   `json:"forward_host"`
	ForwardPort    int      `json:"forward_port"`
	AccessListID   int      `json:"access_list_id"`
	CertificateID  int      `json:"certificate_id"`
	SSLForced      FlexBool `json:"ssl_forced"`
	CachingEnabled FlexBool `json:"caching_enabled"`
	BlockExploits  FlexBool `json:"block_exploits"`
	AllowWebsocket FlexBool `json:"allow_websocket_upgrade"`
	HTTP2Support   FlexBool `json:"http2_support"`
	HSTSEnabled    FlexBool `json:"hsts_enabled"`
	HSTSSubdomains FlexBool `json:"hsts_subdomains"`
	AdvancedConfig string   `json:"advanced_config"`
	Enabled        FlexBool `json:"enabled"`
	Meta           Meta     `json:"meta,omitempty"`
	IsDeleted      FlexBool `json:"is_deleted,omitempty"`
}

// Stream is the proxy-manager's representation of a layer-4 TCP/UDP forward (§3, §6).
type Stream struct {
	ID              int      `json:"id,omitempty"`
	IncomingPort    int      `json:"incoming_port"`
	ForwardingHost  string   `json:"forwarding_host"`
	ForwardingPort  int      `json:"forwarding_port"`
	TCPForwarding   FlexBool `json:"tcp_forwarding"`
	UDPForwarding   FlexBool `json:"udp_forwarding"`
	CertificateID   int      `json:"certificate_id"`
	Enabled         FlexBool `json:"enabled"`
	Meta            Meta     `json:"meta,omitempty"`
	IsDeleted       FlexBool `json:"is_deleted,omitempty"`
}

// RedirectionHost mirrors the fields this controller's resource mirror needs to sync, without ever being
// created or updated by the reconciler itself (reconciliation only manages proxy hosts and streams, §4.5).
type RedirectionHost struct {
	ID            int      `json:"id,omitempty"`
	DomainNames   []string `json:"domain_names"`
	ForwardDomain string   `json:"forward_domain_name"`
	CertificateID int      `json:"certificate_id"`
	Meta          Meta     `json:"meta,omitempty"`
	IsDeleted     FlexBool `json:"is_deleted,omitempty"`
}

// DeadHost mirrors the fields this controller's resource mirror needs to sync (§4.8).
type DeadHost struct {
	ID            int      `json:"id,omitempty"`
	DomainNames   []string `json:"domain_names"`
	CertificateID int      `json:"certificate_id"`
	Meta          Meta     `json:"meta,omitempty"`
	IsDeleted     FlexBool `json:"is_deleted,omitempty"`
}

// Certificate is a proxy-manager TLS certificate resource (§4.3, §4.8).
type Certificate struct {
	ID          int      `json:"id,omitempty"`
	NiceName    string   `json:"nice_name"`
	DomainNames []string `json:"domain_names"`
	Provider    string   `json:"provider"`
	Meta        Meta     `json:"meta,omitempty"`
	IsDeleted   FlexBool `json:"is_deleted,omitempty"`
}

// AccessList is a proxy-manager access-control list resource, referenced by id from proxy hosts (§4.8).
type AccessList struct {
	ID        int      `json:"id,omitempty"`
	Name      string   `json:"name"`
	Meta      Meta     `json:"meta,omitempty"`
	IsDeleted FlexBool `json:"is_deleted,omitempty"`
}
