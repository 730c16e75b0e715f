package model

import "time"

// UsageStatus defines the lifecycle state of a material object.
type UsageStatus string

const (
	StatusNew    UsageStatus = "NEW"    // Freshly fabricated, never put in service
	StatusInUse  UsageStatus = "IN_USE" // Installed and currently in service
	StatusReused UsageStatus = "REUSED" // Recovered from a prior structure and reinstalled
)

// ValidUsageStatuses enumerates the accepted usage status values.
var ValidUsageStatuses = map[UsageStatus]bool{
	StatusNew:    true,
	StatusInUse:  true,
	StatusReused: true,
}

// AccessType classifies entries in the access audit log.
type AccessType string

const (
	AccessCollect      AccessType = "COLLECT"       // Full record retrieval by a collector
	AccessModify       AccessType = "MODIFY"        // Raw CID replacement by a modifier
	AccessView         AccessType = "VIEW"          // Read-only inspection
	AccessStatusUpdate AccessType = "STATUS_UPDATE" // Usage status transition
)

// ValidAccessTypes enumerates the accepted access type values.
var ValidAccessTypes = map[AccessType]bool{
	AccessCollect:      true,
	AccessModify:       true,
	AccessView:         true,
	AccessStatusUpdate: true,
}

// Maquette is a parent design-model record grouping material objects.
// Attributes are immutable after deposit; only ObjectIDs grows as
// objects are deposited under it, and Active can be cleared by an admin.
type Maquette struct {
	ObjectType    string    `json:"objectType"` // "Maquette"
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Architect     string    `json:"architect"`
	GeoDescriptor string    `json:"geoDescriptor"`
	Programme     string    `json:"programme"`
	DeliveryDate  int64     `json:"deliveryDate"` // unix seconds, supplied by the extraction pipeline
	DepositedAt   time.Time `json:"depositedAt"`
	IfcCID        string    `json:"ifcCid"`
	MetadataCID   string    `json:"metadataCid"`
	Depositor     string    `json:"depositor"`
	ObjectIDs     []string  `json:"objectIds"` // child objects in deposit order
	Active        bool      `json:"active"`
}

// MaterialObject is the registry's record of a single physical material
// instance. RawCID, MetadataCID, IntegrityDigest, Status and the two
// counters are the only fields mutated after deposit.
type MaterialObject struct {
	ObjectType        string      `json:"objectType"` // "MaterialObject"
	ID                string      `json:"id"`
	MaquetteID        string      `json:"maquetteId"`
	Name              string      `json:"name"`
	MaterialType      string      `json:"materialType"`
	Characteristic    string      `json:"characteristic"` // material grade, e.g. "S355"
	LengthMM          uint64      `json:"lengthMm"`
	Status            UsageStatus `json:"status"`
	FabricationDate   int64       `json:"fabricationDate"` // unix seconds
	InServiceDate     int64       `json:"inServiceDate"`   // unix seconds
	ReuseDate         int64       `json:"reuseDate"`       // unix seconds, 0 when not applicable
	CarbonFootprintG  uint64      `json:"carbonFootprintG"`
	RawCID            string      `json:"rawCid"`
	MetadataCID       string      `json:"metadataCid"`
	IntegrityDigest   string      `json:"integrityDigest,omitempty"`
	Depositor         string      `json:"depositor"`
	DepositedAt       time.Time   `json:"depositedAt"`
	Active            bool        `json:"active"`
	ModificationCount uint64      `json:"modificationCount"`
	AccessCount       uint64      `json:"accessCount"`
}

// AccessLogEntry is one immutable record in the append-only audit log.
type AccessLogEntry struct {
	ObjectType string     `json:"objectType"` // "AccessLogEntry"
	Seq        uint64     `json:"seq"`        // global insertion order
	ObjectID   string     `json:"objectId"`
	Accessor   string     `json:"accessor"`
	AccessType AccessType `json:"accessType"`
	Timestamp  time.Time  `json:"timestamp"`
}

// GlobalIndex is the single checkpoint record pointing at the latest
// externally computed consolidated snapshot. It is overwritten wholesale.
type GlobalIndex struct {
	ObjectType string    `json:"objectType"` // "GlobalIndex"
	CID        string    `json:"cid"`
	ItemCount  uint64    `json:"itemCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UpdatedBy  string    `json:"updatedBy"`
}

// PaginatedIDs is the structure returned by paginated index queries.
type PaginatedIDs struct {
	IDs    []string `json:"ids"`
	Offset uint64   `json:"offset"`
	Limit  uint64   `json:"limit"`
	Total  uint64   `json:"total"`
}
