package contract

import (
	"encoding/json"
	"fmt"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Global Index Pointer ---
//
// A single checkpoint record pointing at the latest externally computed
// consolidated snapshot. Not versioned; each update replaces the prior
// reference entirely.

// UpdateGlobalIndex overwrites the pointer record. Any registered actor
// may update it; no specific role is required.
func (s *RegistryContract) UpdateGlobalIndex(ctx contractapi.TransactionContextInterface, cid string, itemCount uint64) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UpdateGlobalIndex: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRegistered(); err != nil {
		return err
	}
	if err := s.validateRequiredString(cid, "cid", maxStringInputLength); err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	index := model.GlobalIndex{
		ObjectType: globalIndexKey,
		CID:        cid,
		ItemCount:  itemCount,
		UpdatedAt:  now,
		UpdatedBy:  actor.fullID,
	}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("UpdateGlobalIndex: failed to marshal index record: %w", err)
	}
	if err := ctx.GetStub().PutState(globalIndexKey, indexBytes); err != nil {
		return fmt.Errorf("UpdateGlobalIndex: failed to save index record: %w", err)
	}

	s.emitRegistryEvent(ctx, "GlobalIndexUpdated", actor, now, map[string]interface{}{
		"cid":       cid,
		"itemCount": itemCount,
	})
	logger.Infof("Global index updated to '%s' (%d items) by '%s'", cid, itemCount, actor.alias)
	return nil
}

// GetCurrentIndex returns the pointer record. Unrestricted read.
func (s *RegistryContract) GetCurrentIndex(ctx contractapi.TransactionContextInterface) (*model.GlobalIndex, error) {
	indexBytes, err := ctx.GetStub().GetState(globalIndexKey)
	if err != nil {
		return nil, fmt.Errorf("GetCurrentIndex: failed to read index record: %w", err)
	}
	if indexBytes == nil {
		return nil, fmt.Errorf("global index: %w", ErrNotFound)
	}
	var index model.GlobalIndex
	if err := json.Unmarshal(indexBytes, &index); err != nil {
		return nil, fmt.Errorf("GetCurrentIndex: failed to unmarshal index record: %w", err)
	}
	return &index, nil
}
