package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("buildtrace.registry")

// Object types for composite keys, also usable as 'docType' for CouchDB queries.
const (
	maquetteObjectType       = "Maquette"
	materialObjectType       = "MaterialObject"
	accessLogObjectType      = "AccessLog"      // Attributes: objectID, zero-padded seq
	materialIndexObjectType  = "MaterialIndex"  // Attribute: materialType
	depositorIndexObjectType = "DepositorIndex" // Attribute: depositor FullID
)

// Plain state keys for singleton records and counters.
const (
	globalIndexKey   = "GlobalIndex"
	pausedKey        = "RegistryPaused"
	objectCountKey   = "ObjectCount"
	maquetteCountKey = "MaquetteCount"
	accessLogSeqKey  = "AccessLogSeq"
)

// Constants for input validation and limits.
const (
	maxStringInputLength = 256
	maxDescriptionLength = 1024
)

// RegistryContract provides the authorization-gated operations of the
// building-materials provenance registry. Every mutating operation runs
// the same gate: pause check, role check, validate, mutate, emit.
// @contract:RegistryContract
type RegistryContract struct {
	contractapi.Contract
}

// actorInfo holds commonly needed details about the transaction invoker.
type actorInfo struct {
	fullID string
	alias  string
	mspID  string
}

// Instantiate is called during chaincode instantiation.
func (s *RegistryContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("RegistryContract Instantiated/Upgraded")
}

// --- Core Helper Methods ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from
// the stub. Timestamps are always commit time, never caller input.
func (s *RegistryContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func (s *RegistryContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	im := NewIdentityManager(ctx)
	fullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's FullID: %w", err)
	}

	var alias string
	if idInfo, errGetInfo := im.GetIdentityInfo(fullID); errGetInfo == nil && idInfo != nil {
		alias = idInfo.ShortName
	}

	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's MSPID: %w", err)
	}
	return &actorInfo{fullID: fullID, alias: alias, mspID: mspID}, nil
}

// requireNotPaused is the first gate of every mutating operation.
func (s *RegistryContract) requireNotPaused(ctx contractapi.TransactionContextInterface) error {
	flagBytes, err := ctx.GetStub().GetState(pausedKey)
	if err != nil {
		return fmt.Errorf("failed to read pause flag: %w", err)
	}
	if flagBytes != nil && string(flagBytes) == "true" {
		return ErrPaused
	}
	return nil
}

// --- Validation Helper Functions ---

func (s *RegistryContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty: %w", field, ErrValidation)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d: %w", field, max, ErrValidation)
	}
	return nil
}

func (s *RegistryContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%s exceeds max length %d: %w", field, max, ErrValidation)
	}
	return nil
}

// --- Counter Helpers ---

func (s *RegistryContract) readCounter(ctx contractapi.TransactionContextInterface, key string) (uint64, error) {
	countBytes, err := ctx.GetStub().GetState(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter '%s': %w", key, err)
	}
	if countBytes == nil {
		return 0, nil
	}
	count, err := strconv.ParseUint(string(countBytes), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter '%s' value '%s': %w", key, string(countBytes), err)
	}
	return count, nil
}

func (s *RegistryContract) incrementCounter(ctx contractapi.TransactionContextInterface, key string) (uint64, error) {
	count, err := s.readCounter(ctx, key)
	if err != nil {
		return 0, err
	}
	count++
	if err := ctx.GetStub().PutState(key, []byte(strconv.FormatUint(count, 10))); err != nil {
		return 0, fmt.Errorf("failed to save counter '%s': %w", key, err)
	}
	return count, nil
}

// --- Event Emission ---

// emitRegistryEvent sends a chaincode event carrying the actor identity
// and the commit timestamp alongside the entity payload.
func (s *RegistryContract) emitRegistryEvent(ctx contractapi.TransactionContextInterface, eventName string, actor *actorInfo, ts time.Time, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if actor != nil {
		payload["actorFullId"] = actor.fullID
		payload["actorAlias"] = actor.alias
	}
	payload["transactionTimestamp"] = ts.Format(time.RFC3339)

	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitRegistryEvent: failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitRegistryEvent: failed to set event '%s': %v", eventName, errSet)
	}
}

// --- Identity & Role Management Wrappers (Delegating to IdentityManager) ---

func (s *RegistryContract) RegisterIdentity(ctx contractapi.TransactionContextInterface, targetFullID, shortName string) error {
	logger.Infof("Chaincode Call: RegisterIdentity for '%s' with alias '%s'", targetFullID, shortName)
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	return NewIdentityManager(ctx).RegisterIdentity(targetFullID, shortName)
}

// GrantRole grants a role to an identity and emits a RoleGranted event.
// Admin only; re-granting a held role is a no-op success.
func (s *RegistryContract) GrantRole(ctx contractapi.TransactionContextInterface, identityOrAlias, role string) error {
	logger.Infof("Chaincode Call: GrantRole '%s' to '%s'", role, identityOrAlias)
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	im := NewIdentityManager(ctx)
	if err := im.GrantRole(identityOrAlias, role); err != nil {
		return err
	}

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("GrantRole: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}
	targetFullID, err := im.ResolveIdentity(identityOrAlias)
	if err != nil {
		return fmt.Errorf("GrantRole: failed to resolve granted identity '%s': %w", identityOrAlias, err)
	}
	s.emitRegistryEvent(ctx, "RoleGranted", actor, now, map[string]interface{}{
		"identity": targetFullID,
		"role":     strings.ToLower(strings.TrimSpace(role)),
	})
	return nil
}

// HasRole reports whether an identity holds a role. Unrestricted read.
func (s *RegistryContract) HasRole(ctx contractapi.TransactionContextInterface, identityOrAlias, role string) (bool, error) {
	return NewIdentityManager(ctx).HasRole(identityOrAlias, role)
}

// GetIdentityDetails returns the IdentityInfo record. Admins may query
// anyone; other callers only themselves.
func (s *RegistryContract) GetIdentityDetails(ctx contractapi.TransactionContextInterface, identityOrAlias string) (*model.IdentityInfo, error) {
	im := NewIdentityManager(ctx)
	isCallerAdmin, err := im.IsCurrentUserAdmin()
	if err != nil {
		return nil, fmt.Errorf("GetIdentityDetails: failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		callerFullID, err := im.GetCurrentIdentityFullID()
		if err != nil {
			return nil, fmt.Errorf("GetIdentityDetails: failed to get caller's FullID: %w", err)
		}
		targetFullID, err := im.ResolveIdentity(identityOrAlias)
		if err != nil {
			return nil, fmt.Errorf("GetIdentityDetails: failed to resolve target identity '%s': %w", identityOrAlias, err)
		}
		if callerFullID != targetFullID {
			return nil, fmt.Errorf("only admins or the identity owner can get these details: %w", ErrUnauthorized)
		}
	}
	return im.GetIdentityInfo(identityOrAlias)
}

func (s *RegistryContract) GetAllIdentities(ctx contractapi.TransactionContextInterface) ([]model.IdentityInfo, error) {
	logger.Debug("Chaincode Call: GetAllIdentities")
	return NewIdentityManager(ctx).GetAllRegisteredIdentities()
}
