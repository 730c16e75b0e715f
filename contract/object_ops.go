package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Object Store ---

func (s *RegistryContract) createObjectCompositeKey(ctx contractapi.TransactionContextInterface, objectID string) (string, error) {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return "", fmt.Errorf("objectID cannot be empty: %w", ErrValidation)
	}
	return ctx.GetStub().CreateCompositeKey(materialObjectType, []string{objectID})
}

// getObjectByID is an internal helper to retrieve and unmarshal a material object.
func (s *RegistryContract) getObjectByID(ctx contractapi.TransactionContextInterface, objectID string) (*model.MaterialObject, error) {
	objectKey, err := s.createObjectCompositeKey(ctx, objectID)
	if err != nil {
		return nil, err
	}
	objectBytes, err := ctx.GetStub().GetState(objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s' from ledger: %w", objectID, err)
	}
	if objectBytes == nil {
		return nil, fmt.Errorf("object '%s': %w", objectID, ErrNotFound)
	}
	var object model.MaterialObject
	if err := json.Unmarshal(objectBytes, &object); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object '%s': %w", objectID, err)
	}
	return &object, nil
}

// getActiveObjectByID fetches an object and rejects deactivated records.
func (s *RegistryContract) getActiveObjectByID(ctx contractapi.TransactionContextInterface, objectID string) (*model.MaterialObject, error) {
	object, err := s.getObjectByID(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if !object.Active {
		return nil, fmt.Errorf("object '%s': %w", objectID, ErrInactiveRecord)
	}
	return object, nil
}

func (s *RegistryContract) putObject(ctx contractapi.TransactionContextInterface, object *model.MaterialObject) error {
	objectKey, err := s.createObjectCompositeKey(ctx, object.ID)
	if err != nil {
		return err
	}
	objectBytes, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("failed to marshal object '%s': %w", object.ID, err)
	}
	if err := ctx.GetStub().PutState(objectKey, objectBytes); err != nil {
		return fmt.Errorf("failed to save object '%s': %w", object.ID, err)
	}
	return nil
}

// DepositObject records a material object under an existing maquette.
// Depositor role required. The object record, the maquette child list,
// the by-material and by-depositor indices, and the global counter are
// all written in this one transaction.
//
// The maquette check is existence-only: deposits under a deactivated
// maquette are accepted, matching the source contract's behavior.
func (s *RegistryContract) DepositObject(ctx contractapi.TransactionContextInterface,
	objectID, maquetteID, name, materialType, characteristic string,
	lengthMM uint64, status string,
	fabricationDate, inServiceDate, reuseDate int64,
	carbonFootprintG uint64, rawCID, metadataCID string) error {

	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DepositObject: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleDepositor); err != nil {
		return err
	}

	logger.Infof("Depositor '%s' (alias: '%s') depositing object '%s' under maquette '%s'", actor.fullID, actor.alias, objectID, maquetteID)

	// The trimmed ids are what composite keys are built from; store the
	// same form so records and index entries match their keys.
	objectID = strings.TrimSpace(objectID)
	maquetteID = strings.TrimSpace(maquetteID)
	if err := s.validateRequiredString(objectID, "objectID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(maquetteID, "maquetteID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(materialType, "materialType", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(characteristic, "characteristic", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(rawCID, "rawCID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(metadataCID, "metadataCID", maxStringInputLength); err != nil {
		return err
	}
	usageStatus := model.UsageStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !model.ValidUsageStatuses[usageStatus] {
		return fmt.Errorf("invalid usage status '%s': %w", status, ErrValidation)
	}

	objectKey, err := s.createObjectCompositeKey(ctx, objectID)
	if err != nil {
		return err
	}
	existing, err := ctx.GetStub().GetState(objectKey)
	if err != nil {
		return fmt.Errorf("DepositObject: failed to check for existing object '%s': %w", objectID, err)
	}
	if existing != nil {
		return fmt.Errorf("object '%s' already exists: %w", objectID, ErrDuplicateID)
	}

	maquette, err := s.getMaquetteByID(ctx, maquetteID)
	if err != nil {
		return fmt.Errorf("DepositObject: referenced maquette: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	object := model.MaterialObject{
		ObjectType:        materialObjectType,
		ID:                objectID,
		MaquetteID:        maquetteID,
		Name:              name,
		MaterialType:      materialType,
		Characteristic:    characteristic,
		LengthMM:          lengthMM,
		Status:            usageStatus,
		FabricationDate:   fabricationDate,
		InServiceDate:     inServiceDate,
		ReuseDate:         reuseDate,
		CarbonFootprintG:  carbonFootprintG,
		RawCID:            rawCID,
		MetadataCID:       metadataCID,
		Depositor:         actor.fullID,
		DepositedAt:       now,
		Active:            true,
		ModificationCount: 0,
		AccessCount:       0,
	}
	if err := s.putObject(ctx, &object); err != nil {
		return fmt.Errorf("DepositObject: %w", err)
	}

	maquette.ObjectIDs = append(maquette.ObjectIDs, objectID)
	if err := s.putMaquette(ctx, maquette); err != nil {
		return fmt.Errorf("DepositObject: failed to append child to maquette '%s': %w", maquetteID, err)
	}
	if err := s.appendToIDList(ctx, materialIndexObjectType, materialType, objectID); err != nil {
		return fmt.Errorf("DepositObject: %w", err)
	}
	if err := s.appendToIDList(ctx, depositorIndexObjectType, actor.fullID, objectID); err != nil {
		return fmt.Errorf("DepositObject: %w", err)
	}
	if _, err := s.incrementCounter(ctx, objectCountKey); err != nil {
		return fmt.Errorf("DepositObject: %w", err)
	}

	s.emitRegistryEvent(ctx, "ObjectDeposited", actor, now, map[string]interface{}{
		"objectId":     objectID,
		"maquetteId":   maquetteID,
		"materialType": materialType,
		"status":       usageStatus,
		"rawCid":       rawCID,
	})
	logger.Infof("Object '%s' deposited successfully by '%s'", objectID, actor.alias)
	return nil
}

// ModifyObjectCID replaces the raw content identifier of an active
// object. Modifier role required. Bumps ModificationCount and appends a
// MODIFY entry to the audit log.
func (s *RegistryContract) ModifyObjectCID(ctx contractapi.TransactionContextInterface, objectID, newRawCID string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ModifyObjectCID: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleModifier); err != nil {
		return err
	}
	if err := s.validateRequiredString(newRawCID, "newRawCID", maxStringInputLength); err != nil {
		return err
	}

	object, err := s.getActiveObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	object.RawCID = newRawCID
	object.ModificationCount++
	if err := s.putObject(ctx, object); err != nil {
		return fmt.Errorf("ModifyObjectCID: %w", err)
	}
	if err := s.appendAccessLogEntry(ctx, objectID, actor.fullID, model.AccessModify, now); err != nil {
		return fmt.Errorf("ModifyObjectCID: %w", err)
	}

	s.emitRegistryEvent(ctx, "ObjectModified", actor, now, map[string]interface{}{
		"objectId":          objectID,
		"rawCid":            newRawCID,
		"modificationCount": object.ModificationCount,
	})
	logger.Infof("Object '%s' CID modified by '%s' (modification #%d)", objectID, actor.alias, object.ModificationCount)
	return nil
}

// UpdateObjectStatus transitions the usage status of an active object.
// Modifier role required. Status changes count as modifications, so the
// modification counter is bumped and a STATUS_UPDATE entry is logged.
func (s *RegistryContract) UpdateObjectStatus(ctx contractapi.TransactionContextInterface, objectID, newStatus string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UpdateObjectStatus: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleModifier); err != nil {
		return err
	}
	usageStatus := model.UsageStatus(strings.ToUpper(strings.TrimSpace(newStatus)))
	if !model.ValidUsageStatuses[usageStatus] {
		return fmt.Errorf("invalid usage status '%s': %w", newStatus, ErrValidation)
	}

	object, err := s.getActiveObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	previous := object.Status
	object.Status = usageStatus
	object.ModificationCount++
	if err := s.putObject(ctx, object); err != nil {
		return fmt.Errorf("UpdateObjectStatus: %w", err)
	}
	if err := s.appendAccessLogEntry(ctx, objectID, actor.fullID, model.AccessStatusUpdate, now); err != nil {
		return fmt.Errorf("UpdateObjectStatus: %w", err)
	}

	s.emitRegistryEvent(ctx, "ObjectStatusUpdated", actor, now, map[string]interface{}{
		"objectId":       objectID,
		"previousStatus": previous,
		"status":         usageStatus,
	})
	logger.Infof("Object '%s' status updated %s -> %s by '%s'", objectID, previous, usageStatus, actor.alias)
	return nil
}

// UpdateObjectMetadata replaces the metadata CID and integrity digest of
// an active object. Modifier role required. Metadata is versioned
// independently of the raw CID, so ModificationCount stays untouched.
func (s *RegistryContract) UpdateObjectMetadata(ctx contractapi.TransactionContextInterface, objectID, newMetadataCID, newIntegrityDigest string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UpdateObjectMetadata: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleModifier); err != nil {
		return err
	}
	if err := s.validateRequiredString(newMetadataCID, "newMetadataCID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(newIntegrityDigest, "newIntegrityDigest", maxStringInputLength); err != nil {
		return err
	}

	object, err := s.getActiveObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	object.MetadataCID = newMetadataCID
	object.IntegrityDigest = newIntegrityDigest
	if err := s.putObject(ctx, object); err != nil {
		return fmt.Errorf("UpdateObjectMetadata: %w", err)
	}

	s.emitRegistryEvent(ctx, "ObjectMetadataUpdated", actor, now, map[string]interface{}{
		"objectId":        objectID,
		"metadataCid":     newMetadataCID,
		"integrityDigest": newIntegrityDigest,
	})
	logger.Infof("Object '%s' metadata updated by '%s'", objectID, actor.alias)
	return nil
}

// DeactivateObject is the terminal lifecycle state of an object. Admin
// only. Counters, indices and audit history stay intact and queryable;
// there is no operation that restores Active.
func (s *RegistryContract) DeactivateObject(ctx contractapi.TransactionContextInterface, objectID string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DeactivateObject: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireAdmin(); err != nil {
		return fmt.Errorf("DeactivateObject: %w", err)
	}

	object, err := s.getObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	if !object.Active {
		logger.Infof("DeactivateObject: object '%s' is already inactive. No changes made.", objectID)
		return nil
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}
	object.Active = false
	if err := s.putObject(ctx, object); err != nil {
		return fmt.Errorf("DeactivateObject: %w", err)
	}

	s.emitRegistryEvent(ctx, "ObjectDeactivated", actor, now, map[string]interface{}{
		"objectId": objectID,
	})
	logger.Infof("Object '%s' deactivated by admin '%s'", objectID, actor.alias)
	return nil
}

// GetObjectCount returns the number of objects ever deposited.
func (s *RegistryContract) GetObjectCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return s.readCounter(ctx, objectCountKey)
}
