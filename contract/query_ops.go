package contract

import (
	"fmt"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Index Queries ---
//
// All searches return object ids in deposit order. Searches over other
// parties' records require the collector role; a caller may always list
// their own deposits. Read-only operations bypass the pause gate.

// SearchByMaterial returns the ids of every object deposited with the
// given material type. Collector role required.
func (s *RegistryContract) SearchByMaterial(ctx contractapi.TransactionContextInterface, materialType string) ([]string, error) {
	if err := s.validateRequiredString(materialType, "materialType", maxStringInputLength); err != nil {
		return nil, err
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleCollector); err != nil {
		return nil, err
	}
	return s.readIDList(ctx, materialIndexObjectType, materialType)
}

// SearchByMaquette returns the ids of every object deposited under the
// maquette. Collector role required; the maquette must exist.
func (s *RegistryContract) SearchByMaquette(ctx contractapi.TransactionContextInterface, maquetteID string) ([]string, error) {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleCollector); err != nil {
		return nil, err
	}
	maquette, err := s.getMaquetteByID(ctx, maquetteID)
	if err != nil {
		return nil, err
	}
	return maquette.ObjectIDs, nil
}

// GetObjectsOf returns the ids of every object deposited by the given
// identity. Collector role required unless the caller queries itself.
func (s *RegistryContract) GetObjectsOf(ctx contractapi.TransactionContextInterface, identityOrAlias string) ([]string, error) {
	im := NewIdentityManager(ctx)
	targetFullID, err := im.ResolveIdentity(identityOrAlias)
	if err != nil {
		return nil, fmt.Errorf("GetObjectsOf: failed to resolve identity '%s': %w", identityOrAlias, err)
	}
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetObjectsOf: failed to get caller's FullID: %w", err)
	}
	if callerFullID != targetFullID {
		if err := im.RequireRole(RoleCollector); err != nil {
			return nil, err
		}
	}
	return s.readIDList(ctx, depositorIndexObjectType, targetFullID)
}

// GetMyObjects returns the ids of the caller's own deposits. Any caller.
func (s *RegistryContract) GetMyObjects(ctx contractapi.TransactionContextInterface) ([]string, error) {
	im := NewIdentityManager(ctx)
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetMyObjects: failed to get caller's FullID: %w", err)
	}
	return s.readIDList(ctx, depositorIndexObjectType, callerFullID)
}

// SearchByMaterialPaginated pages through a material index. Offset past
// the end fails with ErrOutOfRange; an oversized limit clamps.
func (s *RegistryContract) SearchByMaterialPaginated(ctx contractapi.TransactionContextInterface, materialType string, offset, limit uint64) (*model.PaginatedIDs, error) {
	ids, err := s.SearchByMaterial(ctx, materialType)
	if err != nil {
		return nil, err
	}
	return paginateIDs(ids, offset, limit)
}

// SearchByMaquettePaginated pages through a maquette's child list.
func (s *RegistryContract) SearchByMaquettePaginated(ctx contractapi.TransactionContextInterface, maquetteID string, offset, limit uint64) (*model.PaginatedIDs, error) {
	ids, err := s.SearchByMaquette(ctx, maquetteID)
	if err != nil {
		return nil, err
	}
	return paginateIDs(ids, offset, limit)
}

// GetObject returns the object record without audit side effects.
// Collector role required; deactivated records remain readable so their
// history stays inspectable. View tracking goes through RecordAccess.
func (s *RegistryContract) GetObject(ctx contractapi.TransactionContextInterface, objectID string) (*model.MaterialObject, error) {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleCollector); err != nil {
		return nil, err
	}
	return s.getObjectByID(ctx, objectID)
}
