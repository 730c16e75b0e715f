package model

import "time"

// IdentityInfo stores information about registered participants in the
// registry. An identity may hold several roles simultaneously; admin
// status is a separate flag and not a member of Roles.
type IdentityInfo struct {
	ObjectType      string    `json:"objectType"`      // Set to the composite key object type (IdentityInfo)
	FullID          string    `json:"fullId"`          // Full X.509 identity string
	ShortName       string    `json:"shortName"`       // Alias/short name for this identity
	OrganizationMSP string    `json:"organizationMsp"` // MSP ID of the organization
	Roles           []string  `json:"roles"`           // Roles granted to this identity
	IsAdmin         bool      `json:"isAdmin"`         // Whether this identity has admin privileges
	RegisteredBy    string    `json:"registeredBy"`    // Full ID of identity that registered this one
	RegisteredAt    time.Time `json:"registeredAt"`    // Timestamp when identity was registered
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`   // Timestamp of last update to this record
}
