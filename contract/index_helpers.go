package contract

import (
	"encoding/json"
	"fmt"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Secondary indices are ordered id lists stored as JSON arrays under a
// composite key per index key. They are append-only and written in the
// same transaction as the primary record, so the read/write set commits
// them atomically with the object deposit.

func (s *RegistryContract) readIDList(ctx contractapi.TransactionContextInterface, objectType, key string) ([]string, error) {
	indexKey, err := ctx.GetStub().CreateCompositeKey(objectType, []string{key})
	if err != nil {
		return nil, fmt.Errorf("failed to create index key %s/%s: %w", objectType, key, err)
	}
	listBytes, err := ctx.GetStub().GetState(indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s/%s: %w", objectType, key, err)
	}
	ids := []string{}
	if listBytes != nil {
		if err := json.Unmarshal(listBytes, &ids); err != nil {
			return nil, fmt.Errorf("failed to unmarshal index %s/%s: %w", objectType, key, err)
		}
	}
	return ids, nil
}

func (s *RegistryContract) appendToIDList(ctx contractapi.TransactionContextInterface, objectType, key, id string) error {
	ids, err := s.readIDList(ctx, objectType, key)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	listBytes, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal index %s/%s: %w", objectType, key, err)
	}
	indexKey, err := ctx.GetStub().CreateCompositeKey(objectType, []string{key})
	if err != nil {
		return fmt.Errorf("failed to create index key %s/%s: %w", objectType, key, err)
	}
	if err := ctx.GetStub().PutState(indexKey, listBytes); err != nil {
		return fmt.Errorf("failed to save index %s/%s: %w", objectType, key, err)
	}
	return nil
}

// paginateIDs returns the contiguous slice [offset, min(offset+limit, len)).
// An offset at or beyond the end of the list fails with ErrOutOfRange; a
// limit larger than the remainder clamps. The remainder is computed
// before any addition so a limit near MaxUint64 cannot wrap.
func paginateIDs(ids []string, offset, limit uint64) (*model.PaginatedIDs, error) {
	total := uint64(len(ids))
	if offset >= total {
		return nil, fmt.Errorf("offset %d with %d entries: %w", offset, total, ErrOutOfRange)
	}
	count := total - offset
	if limit < count {
		count = limit
	}
	page := make([]string, count)
	copy(page, ids[offset:offset+count])
	return &model.PaginatedIDs{IDs: page, Offset: offset, Limit: limit, Total: total}, nil
}
