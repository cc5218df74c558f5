package domain

// Role is the permission class bound to an identity.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleApprover  Role = "approver"
	RoleRegistrar Role = "registrar"
	RoleFinancier Role = "financier"
	RoleAdmin     Role = "admin"
)

// Identity names a credential provisioned in an external wallet. The registry
// only references identities by name; key material never passes through here.
type Identity struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Role         Role   `json:"role"`
}

// NetworkProfile describes one reachable ledger endpoint.
type NetworkProfile struct {
	NetworkName       string `json:"networkName"`
	ChannelName       string `json:"channelName"`
	ChaincodeName     string `json:"chaincodeName"`
	Organization      string `json:"organization"`
	MSPID             string `json:"mspId"`
	Endpoint          string `json:"endpoint"`
	ConnectionProfile string `json:"connectionProfile"`
	TLSCertPath       string `json:"tlsCertPath,omitempty"`
	DiscoveryEnabled  bool   `json:"discoveryEnabled"`
}
