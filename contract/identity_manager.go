package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("buildtrace.identitymanager")

// Object types for composite keys, also usable as 'docType' in CouchDB.
const (
	identityObjectType  = "IdentityInfo" // Stores IdentityInfo objects. Attribute: FullID.
	aliasObjectType     = "Alias"        // Maps ShortName (alias) to FullID. Attribute: ShortName.
	adminFlagObjectType = "AdminFlag"    // Stores a flag for admin status. Attribute: FullID.
)

// Role names for the registry. Admin is a separate status managed through
// the AdminFlag records, not a member of this list.
const (
	RoleDepositor = "depositor"
	RoleCollector = "collector"
	RoleVerifier  = "verifier"
	RoleModifier  = "modifier"
	RoleKeeper    = "keeper"
)

// ValidRoles defines the set of grantable roles in the system.
var ValidRoles = map[string]bool{
	RoleDepositor: true,
	RoleCollector: true,
	RoleVerifier:  true,
	RoleModifier:  true,
	RoleKeeper:    true,
}

// AllRoles returns the grantable roles in a stable order. Used during
// bootstrap, where the initial admin receives every role.
func AllRoles() []string {
	return []string{RoleDepositor, RoleCollector, RoleVerifier, RoleModifier, RoleKeeper}
}

// IdentityManager handles identity registration, role grants, and admin
// privileges for the registry.
type IdentityManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewIdentityManager creates a new instance of IdentityManager.
func NewIdentityManager(ctx contractapi.TransactionContextInterface) *IdentityManager {
	return &IdentityManager{Ctx: ctx}
}

func (im *IdentityManager) getCurrentTxTimestamp() (time.Time, error) {
	ts, err := im.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func isValidX509ID(id string) bool {
	// Basic check, can be enhanced if specific X.509 formats are enforced.
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

// --- Key Creation Helpers (using Composite Keys) ---

func (im *IdentityManager) createIdentityCompositeKey(fullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(identityObjectType, []string{fullID})
}

func (im *IdentityManager) createAliasCompositeKey(shortName string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(aliasObjectType, []string{shortName})
}

func (im *IdentityManager) createAdminFlagCompositeKey(fullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(adminFlagObjectType, []string{fullID})
}

// --- Public Identity Management Functions ---

// RegisterIdentity records an identity and its alias on the ledger.
// Before any admin exists this runs in bootstrap mode; afterwards only
// admins may register identities.
func (im *IdentityManager) RegisterIdentity(targetFullID, shortName string) error {
	anyAdminCurrentlyExists, err := im.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("failed to check if any admin exists during RegisterIdentity: %w", err)
	}

	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		if anyAdminCurrentlyExists {
			return fmt.Errorf("failed to get current caller's FullID: %w", err)
		}
		callerFullID = "SYSTEM_BOOTSTRAP"
	}

	if anyAdminCurrentlyExists {
		isCallerAdmin, errAdminCheck := im.IsCurrentUserAdmin()
		if errAdminCheck != nil {
			return fmt.Errorf("failed to verify caller admin status for RegisterIdentity: %w", errAdminCheck)
		}
		if !isCallerAdmin {
			return fmt.Errorf("caller '%s' may not register identities: %w", callerFullID, ErrUnauthorized)
		}
	} else {
		idLogger.Infof("RegisterIdentity proceeding in bootstrap mode. Caller assumed '%s'.", callerFullID)
	}

	if !isValidX509ID(targetFullID) {
		return fmt.Errorf("targetFullID '%s' is not a valid X.509 ID format: %w", targetFullID, ErrValidation)
	}
	if strings.TrimSpace(shortName) == "" {
		return fmt.Errorf("shortName cannot be empty: %w", ErrValidation)
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}

	targetMSPID := ""
	if clientIdentity := im.Ctx.GetClientIdentity(); clientIdentity != nil {
		mspID, mspErr := clientIdentity.GetMSPID()
		if mspErr != nil {
			idLogger.Warningf("Could not determine MSPID for identity %s from caller's context: %v. Storing empty MSPID.", targetFullID, mspErr)
		} else {
			targetMSPID = mspID
		}
	}

	aliasKey, err := im.createAliasCompositeKey(shortName)
	if err != nil {
		return fmt.Errorf("failed to create alias composite key for '%s': %w", shortName, err)
	}
	existingFullIDForAliasBytes, err := im.Ctx.GetStub().GetState(aliasKey)
	if err != nil {
		return fmt.Errorf("failed to check alias availability for '%s': %w", shortName, err)
	}
	if existingFullIDForAliasBytes != nil && string(existingFullIDForAliasBytes) != targetFullID {
		return fmt.Errorf("shortName (alias) '%s' is already in use by identity '%s': %w", shortName, string(existingFullIDForAliasBytes), ErrDuplicateID)
	}

	identityKey, err := im.createIdentityCompositeKey(targetFullID)
	if err != nil {
		return fmt.Errorf("failed to create identity composite key for '%s': %w", targetFullID, err)
	}
	identityInfoBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return fmt.Errorf("failed to get identity state for '%s': %w", targetFullID, err)
	}
	if identityInfoBytes != nil {
		return fmt.Errorf("identity '%s' is already registered: %w", targetFullID, ErrDuplicateID)
	}

	idInfo := model.IdentityInfo{
		ObjectType:      identityObjectType,
		FullID:          targetFullID,
		ShortName:       shortName,
		OrganizationMSP: targetMSPID,
		Roles:           []string{},
		IsAdmin:         false,
		RegisteredBy:    callerFullID,
		RegisteredAt:    now,
		LastUpdatedAt:   now,
	}
	idLogger.Infof("Registering new identity: %s with alias %s, MSP %s, by %s", targetFullID, shortName, targetMSPID, idInfo.RegisteredBy)

	updatedIdentityInfoBytes, err := json.Marshal(idInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal IdentityInfo for '%s': %w", targetFullID, err)
	}
	if err := im.Ctx.GetStub().PutState(identityKey, updatedIdentityInfoBytes); err != nil {
		return fmt.Errorf("failed to save IdentityInfo for '%s': %w", targetFullID, err)
	}
	if err := im.Ctx.GetStub().PutState(aliasKey, []byte(targetFullID)); err != nil {
		return fmt.Errorf("failed to save alias mapping for '%s' -> '%s': %w", shortName, targetFullID, err)
	}
	return nil
}

// ResolveIdentity maps an alias or full X.509 ID to a full X.509 ID.
func (im *IdentityManager) ResolveIdentity(identityOrAlias string) (string, error) {
	trimmedInput := strings.TrimSpace(identityOrAlias)
	if trimmedInput == "" {
		return "", fmt.Errorf("identityOrAlias cannot be empty: %w", ErrValidation)
	}

	if isValidX509ID(trimmedInput) {
		return trimmedInput, nil
	}

	aliasKey, err := im.createAliasCompositeKey(trimmedInput)
	if err != nil {
		return "", fmt.Errorf("failed to create alias composite key for resolving '%s': %w", trimmedInput, err)
	}
	fullIDBytes, err := im.Ctx.GetStub().GetState(aliasKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when querying alias '%s': %w", trimmedInput, err)
	}
	if fullIDBytes != nil {
		return string(fullIDBytes), nil
	}
	return "", fmt.Errorf("alias '%s': %w", trimmedInput, ErrNotFound)
}

// GetIdentityInfo retrieves the stored IdentityInfo for an alias or full ID.
func (im *IdentityManager) GetIdentityInfo(identityOrAlias string) (*model.IdentityInfo, error) {
	fullID, err := im.ResolveIdentity(identityOrAlias)
	if err != nil {
		return nil, err
	}
	return im.getIdentityInfoByFullID(fullID)
}

func (im *IdentityManager) getIdentityInfoByFullID(fullID string) (*model.IdentityInfo, error) {
	identityKey, err := im.createIdentityCompositeKey(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", fullID, err)
	}
	identityInfoBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving IdentityInfo for FullID '%s': %w", fullID, err)
	}
	if identityInfoBytes == nil {
		return nil, fmt.Errorf("identity record for FullID '%s': %w", fullID, ErrNotFound)
	}
	var idInfo model.IdentityInfo
	if err := json.Unmarshal(identityInfoBytes, &idInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IdentityInfo for FullID '%s': %w", fullID, err)
	}
	if idInfo.Roles == nil {
		idInfo.Roles = []string{}
	}
	return &idInfo, nil
}

// GrantRole adds a role to the target identity. Admin only. Granting an
// already-held role is a no-op success.
func (im *IdentityManager) GrantRole(targetIdentityOrAlias, role string) error {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get caller's FullID for GrantRole: %w", err)
	}
	isCallerAdmin, err := im.IsAdmin(callerFullID)
	if err != nil {
		return fmt.Errorf("failed to verify caller admin status for GrantRole: %w", err)
	}
	if !isCallerAdmin {
		return fmt.Errorf("caller '%s' may not grant roles: %w", callerFullID, ErrUnauthorized)
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !ValidRoles[roleLower] {
		return fmt.Errorf("invalid role '%s' (valid roles: %v): %w", role, AllRoles(), ErrValidation)
	}

	targetFullID, err := im.ResolveIdentity(targetIdentityOrAlias)
	if err != nil {
		return fmt.Errorf("failed to resolve target identity '%s' for GrantRole: %w", targetIdentityOrAlias, err)
	}
	idInfo, err := im.getIdentityInfoByFullID(targetFullID)
	if err != nil {
		return fmt.Errorf("cannot grant role: target identity '%s' must be registered first: %w", targetIdentityOrAlias, err)
	}

	for _, existingRole := range idInfo.Roles {
		if existingRole == roleLower {
			idLogger.Infof("Role '%s' already granted to identity '%s' (%s). No action needed.", roleLower, idInfo.ShortName, targetFullID)
			return nil
		}
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	idInfo.Roles = append(idInfo.Roles, roleLower)
	idInfo.LastUpdatedAt = now

	updatedBytes, err := json.Marshal(idInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal IdentityInfo for role grant: %w", err)
	}
	identityKey, err := im.createIdentityCompositeKey(targetFullID)
	if err != nil {
		return fmt.Errorf("failed to create identity key for role grant: %w", err)
	}
	if err := im.Ctx.GetStub().PutState(identityKey, updatedBytes); err != nil {
		return fmt.Errorf("failed to save IdentityInfo after role grant for '%s': %w", targetFullID, err)
	}
	idLogger.Infof("Role '%s' granted to identity '%s' (%s) by admin '%s'.", roleLower, idInfo.ShortName, targetFullID, callerFullID)
	return nil
}

// HasRole reports whether the identity holds the given role. Unknown
// identities hold no roles.
func (im *IdentityManager) HasRole(identityOrAlias, role string) (bool, error) {
	idInfo, err := im.GetIdentityInfo(identityOrAlias)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error resolving identity '%s' to check role: %w", identityOrAlias, err)
	}
	roleLower := strings.ToLower(strings.TrimSpace(role))
	for _, r := range idInfo.Roles {
		if r == roleLower {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole fails with ErrUnauthorized unless the current caller holds
// the required role. Admin status does not stand in for a missing role;
// the bootstrap admin is granted every role explicitly instead.
func (im *IdentityManager) RequireRole(requiredRole string) error {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get current user's FullID for RequireRole: %w", err)
	}
	has, err := im.HasRole(callerFullID, requiredRole)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for current user '%s': %w", requiredRole, callerFullID, err)
	}
	if !has {
		return fmt.Errorf("identity '%s' does not have required role '%s': %w", callerFullID, requiredRole, ErrUnauthorized)
	}
	return nil
}

// RequireAdmin fails with ErrUnauthorized unless the current caller is an admin.
func (im *IdentityManager) RequireAdmin() error {
	isCallerAdmin, err := im.IsCurrentUserAdmin()
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		callerID, _ := im.GetCurrentIdentityFullID() // Best effort for the message
		return fmt.Errorf("caller '%s' is not an admin: %w", callerID, ErrUnauthorized)
	}
	return nil
}

// RequireRegistered fails unless the current caller has a registered
// identity record. Used by operations open to "any authorized actor".
func (im *IdentityManager) RequireRegistered() error {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get current user's FullID: %w", err)
	}
	if _, err := im.getIdentityInfoByFullID(callerFullID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("identity '%s' is not a registered actor: %w", callerFullID, ErrUnauthorized)
		}
		return err
	}
	return nil
}

// IsAdmin checks admin privileges based on the AdminFlag record, which is
// authoritative over IdentityInfo.IsAdmin.
func (im *IdentityManager) IsAdmin(identityOrAlias string) (bool, error) {
	fullID, err := im.ResolveIdentity(identityOrAlias)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error resolving identity '%s' for IsAdmin check: %w", identityOrAlias, err)
	}
	adminFlagKey, err := im.createAdminFlagCompositeKey(fullID)
	if err != nil {
		return false, fmt.Errorf("failed to create admin flag key for IsAdmin check on '%s': %w", fullID, err)
	}
	flagBytes, err := im.Ctx.GetStub().GetState(adminFlagKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking admin flag for '%s': %w", fullID, err)
	}
	return flagBytes != nil && string(flagBytes) == "true", nil
}

func (im *IdentityManager) IsCurrentUserAdmin() (bool, error) {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return false, fmt.Errorf("failed to get current user's FullID for admin check: %w", err)
	}
	return im.IsAdmin(callerFullID)
}

// AnyAdminExists checks if any admin flag is set on the ledger.
func (im *IdentityManager) AnyAdminExists() (bool, error) {
	iterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(adminFlagObjectType, []string{})
	if err != nil {
		return false, fmt.Errorf("failed to query admin records for AnyAdminExists: %w", err)
	}
	defer iterator.Close()
	return iterator.HasNext(), nil
}

// GetCurrentIdentityFullID retrieves the full X.509 ID of the current transactor.
func (im *IdentityManager) GetCurrentIdentityFullID() (string, error) {
	clientIdentity := im.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// GetAllRegisteredIdentities lists every registered identity. Admin only.
func (im *IdentityManager) GetAllRegisteredIdentities() ([]model.IdentityInfo, error) {
	if err := im.RequireAdmin(); err != nil {
		return nil, fmt.Errorf("GetAllRegisteredIdentities: %w", err)
	}

	resultsIterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(identityObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get identities iterator using objectType '%s': %w", identityObjectType, err)
	}
	defer resultsIterator.Close()

	identities := []model.IdentityInfo{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			idLogger.Warningf("Failed to get next identity from iterator during GetAllRegisteredIdentities: %v. Skipping.", iterErr)
			continue
		}
		var idInfo model.IdentityInfo
		if err := json.Unmarshal(queryResponse.Value, &idInfo); err != nil {
			idLogger.Warningf("Failed to unmarshal identity data for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if idInfo.Roles == nil {
			idInfo.Roles = []string{}
		}
		identities = append(identities, idInfo)
	}
	return identities, nil
}
