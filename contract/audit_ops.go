package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Access Audit Log ---
//
// Entries live under composite keys (AccessLog, objectID, zero-padded
// seq). The per-object attribute makes history a direct partial
// composite key lookup, and the padded global sequence keeps iteration
// in insertion order.

const accessLogSeqWidth = 16

func (s *RegistryContract) appendAccessLogEntry(ctx contractapi.TransactionContextInterface, objectID, accessor string, accessType model.AccessType, ts time.Time) error {
	seq, err := s.incrementCounter(ctx, accessLogSeqKey)
	if err != nil {
		return err
	}
	entry := model.AccessLogEntry{
		ObjectType: accessLogObjectType,
		Seq:        seq,
		ObjectID:   objectID,
		Accessor:   accessor,
		AccessType: accessType,
		Timestamp:  ts,
	}
	entryKey, err := ctx.GetStub().CreateCompositeKey(accessLogObjectType, []string{objectID, fmt.Sprintf("%0*d", accessLogSeqWidth, seq)})
	if err != nil {
		return fmt.Errorf("failed to create access log key for object '%s': %w", objectID, err)
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal access log entry for object '%s': %w", objectID, err)
	}
	if err := ctx.GetStub().PutState(entryKey, entryBytes); err != nil {
		return fmt.Errorf("failed to save access log entry for object '%s': %w", objectID, err)
	}
	return nil
}

// roleForAccessType maps an access type to the role that may record it.
func roleForAccessType(accessType model.AccessType) string {
	switch accessType {
	case model.AccessModify, model.AccessStatusUpdate:
		return RoleModifier
	default:
		return RoleCollector
	}
}

// RecordAccess appends an audit entry for the given object. The caller
// must hold the role matching the access type (collector for
// COLLECT/VIEW, modifier for MODIFY/STATUS_UPDATE). Only COLLECT entries
// bump the object's access counter.
func (s *RegistryContract) RecordAccess(ctx contractapi.TransactionContextInterface, objectID, accessTypeArg string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RecordAccess: failed to get actor info: %w", err)
	}

	accessType := model.AccessType(accessTypeArg)
	if !model.ValidAccessTypes[accessType] {
		return fmt.Errorf("invalid access type '%s': %w", accessTypeArg, ErrValidation)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(roleForAccessType(accessType)); err != nil {
		return err
	}

	object, err := s.getObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	if err := s.appendAccessLogEntry(ctx, objectID, actor.fullID, accessType, now); err != nil {
		return fmt.Errorf("RecordAccess: %w", err)
	}
	if accessType == model.AccessCollect {
		object.AccessCount++
		if err := s.putObject(ctx, object); err != nil {
			return fmt.Errorf("RecordAccess: %w", err)
		}
	}

	s.emitRegistryEvent(ctx, "AccessRecorded", actor, now, map[string]interface{}{
		"objectId":   objectID,
		"accessType": accessType,
	})
	logger.Infof("Access '%s' on object '%s' recorded for '%s'", accessType, objectID, actor.alias)
	return nil
}

// GetMaterialAccessHistory returns every audit entry for the object in
// insertion order. The object must exist; deactivated objects keep their
// history queryable.
func (s *RegistryContract) GetMaterialAccessHistory(ctx contractapi.TransactionContextInterface, objectID string) ([]model.AccessLogEntry, error) {
	if _, err := s.getObjectByID(ctx, objectID); err != nil {
		return nil, err
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(accessLogObjectType, []string{objectID})
	if err != nil {
		return nil, fmt.Errorf("failed to get access log iterator for object '%s': %w", objectID, err)
	}
	defer resultsIterator.Close()

	entries := []model.AccessLogEntry{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetMaterialAccessHistory: error iterating log for '%s': %v. Skipping.", objectID, iterErr)
			continue
		}
		var entry model.AccessLogEntry
		if err := json.Unmarshal(queryResponse.Value, &entry); err != nil {
			logger.Warningf("GetMaterialAccessHistory: error unmarshalling entry for '%s': %v. Skipping.", objectID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CollectObject is the composite collect operation: collector role,
// existence and active checks, an implicit COLLECT audit entry with
// access counter bump, and a full snapshot of the record in return.
func (s *RegistryContract) CollectObject(ctx contractapi.TransactionContextInterface, objectID string) (*model.MaterialObject, error) {
	if err := s.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("CollectObject: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleCollector); err != nil {
		return nil, err
	}

	object, err := s.getActiveObjectByID(ctx, objectID)
	if err != nil {
		return nil, err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, err
	}

	object.AccessCount++
	if err := s.putObject(ctx, object); err != nil {
		return nil, fmt.Errorf("CollectObject: %w", err)
	}
	if err := s.appendAccessLogEntry(ctx, objectID, actor.fullID, model.AccessCollect, now); err != nil {
		return nil, fmt.Errorf("CollectObject: %w", err)
	}

	s.emitRegistryEvent(ctx, "AccessRecorded", actor, now, map[string]interface{}{
		"objectId":   objectID,
		"accessType": model.AccessCollect,
	})
	logger.Infof("Object '%s' collected by '%s' (access #%d)", objectID, actor.alias, object.AccessCount)
	return object, nil
}
