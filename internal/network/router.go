// Package network resolves federation scopes to ledger channels.
//
// The federation runs one global channel (the national registry) plus one
// channel per state. A scope is either ScopeNational or a state code such as
// "TS" or "KA"; each organization carries its own connection profile.
package network

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"landledger/internal/domain"
	dErrors "landledger/pkg/domain-errors"
)

// ScopeNational addresses the federation-wide channel.
const ScopeNational = "national"

// ChannelBinding maps a scope to its channel and chaincode.
type ChannelBinding struct {
	Scope         string `json:"scope"`
	ChannelName   string `json:"channelName"`
	ChaincodeName string `json:"chaincodeName"`
}

// OrgProfile carries the per-organization connection material.
type OrgProfile struct {
	Organization      string `json:"organization"`
	MSPID             string `json:"mspId"`
	Endpoint          string `json:"endpoint"`
	ConnectionProfile string `json:"connectionProfile"`
	TLSCertPath       string `json:"tlsCertPath,omitempty"`
	DiscoveryEnabled  bool   `json:"discoveryEnabled"`
	// HomeScope is the state this org belongs to; empty for the federation org.
	HomeScope string `json:"homeScope,omitempty"`
	// Federation orgs may open sessions on any channel.
	Federation bool `json:"federation,omitempty"`
}

// Table is the full routing configuration, loaded once at startup.
type Table struct {
	Channels []ChannelBinding `json:"channels"`
	Orgs     []OrgProfile     `json:"orgs"`
}

// Router resolves (scope, organization) pairs to network profiles. The table
// is immutable per-request; Reload swaps it wholesale for administrative use.
type Router struct {
	mu       sync.RWMutex
	channels map[string]ChannelBinding
	orgs     map[string]OrgProfile
}

// NewRouter builds a router from a routing table.
func NewRouter(table Table) (*Router, error) {
	r := &Router{}
	if err := r.Reload(table); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadTable reads a routing table from a JSON file. An empty path yields the
// built-in development defaults.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read network profiles: %w", err)
	}
	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return Table{}, fmt.Errorf("parse network profiles: %w", err)
	}
	return table, nil
}

// DefaultTable mirrors the development federation: one global channel plus
// two state channels.
func DefaultTable() Table {
	return Table{
		Channels: []ChannelBinding{
			{Scope: ScopeNational, ChannelName: "registry-global", ChaincodeName: "land-registry"},
			{Scope: "TS", ChannelName: "state-ts", ChaincodeName: "land-registry"},
			{Scope: "KA", ChannelName: "state-ka", ChaincodeName: "land-registry"},
		},
		Orgs: []OrgProfile{
			{Organization: "Federation", MSPID: "FederationMSP", Endpoint: "localhost:7051", ConnectionProfile: "config/connection-federation.yaml", Federation: true},
			{Organization: "Telangana", MSPID: "TelanganaMSP", Endpoint: "localhost:8051", ConnectionProfile: "config/connection-ts.yaml", HomeScope: "TS"},
			{Organization: "Karnataka", MSPID: "KarnatakaMSP", Endpoint: "localhost:9051", ConnectionProfile: "config/connection-ka.yaml", HomeScope: "KA"},
		},
	}
}

// Reload replaces the routing table. Validation failures leave the previous
// table in place.
func (r *Router) Reload(table Table) error {
	channels := make(map[string]ChannelBinding, len(table.Channels))
	for _, c := range table.Channels {
		if c.Scope == "" || c.ChannelName == "" || c.ChaincodeName == "" {
			return fmt.Errorf("channel binding %q incomplete", c.Scope)
		}
		channels[c.Scope] = c
	}
	orgs := make(map[string]OrgProfile, len(table.Orgs))
	for _, o := range table.Orgs {
		if o.Organization == "" || o.ConnectionProfile == "" {
			return fmt.Errorf("org profile %q incomplete", o.Organization)
		}
		orgs[o.Organization] = o
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = channels
	r.orgs = orgs
	return nil
}

// Resolve returns the network profile for a scope/organization combination.
func (r *Router) Resolve(scope, organization string) (domain.NetworkProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, ok := r.channels[scope]
	if !ok {
		return domain.NetworkProfile{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown scope %q", scope)
	}
	org, ok := r.orgs[organization]
	if !ok {
		return domain.NetworkProfile{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown organization %q", organization)
	}

	return domain.NetworkProfile{
		NetworkName:       binding.Scope,
		ChannelName:       binding.ChannelName,
		ChaincodeName:     binding.ChaincodeName,
		Organization:      org.Organization,
		MSPID:             org.MSPID,
		Endpoint:          org.Endpoint,
		ConnectionProfile: org.ConnectionProfile,
		TLSCertPath:       org.TLSCertPath,
		DiscoveryEnabled:  org.DiscoveryEnabled,
	}, nil
}

// Authorize confirms the identity's organization may open a session on the
// target channel before any connection is attempted. Federation orgs reach
// every channel; state orgs reach the national channel and their home state.
func (r *Router) Authorize(identity domain.Identity, profile domain.NetworkProfile) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.orgs[identity.Organization]
	if !ok {
		return dErrors.Newf(dErrors.CodeChannelAccess, "organization %q not configured", identity.Organization)
	}
	if identity.Organization != profile.Organization {
		return dErrors.Newf(dErrors.CodeChannelAccess,
			"identity %q belongs to %q, not %q", identity.Name, identity.Organization, profile.Organization)
	}
	if org.Federation {
		return nil
	}
	if profile.NetworkName == ScopeNational || profile.NetworkName == org.HomeScope {
		return nil
	}
	return dErrors.Newf(dErrors.CodeChannelAccess,
		"organization %q not permitted on channel %q", identity.Organization, profile.ChannelName)
}

// Scopes lists the configured scopes, for the admin surface.
func (r *Router) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for scope := range r.channels {
		out = append(out, scope)
	}
	return out
}

// HomeScope returns the scope to route to for an identity when the request
// does not name one: a state org routes to its home channel, the federation
// org to the national channel.
func (r *Router) HomeScope(identity domain.Identity) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if org, ok := r.orgs[identity.Organization]; ok && org.HomeScope != "" {
		return org.HomeScope
	}
	return ScopeNational
}
