package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Maquette Store ---

func (s *RegistryContract) createMaquetteCompositeKey(ctx contractapi.TransactionContextInterface, maquetteID string) (string, error) {
	maquetteID = strings.TrimSpace(maquetteID)
	if maquetteID == "" {
		return "", fmt.Errorf("maquetteID cannot be empty: %w", ErrValidation)
	}
	return ctx.GetStub().CreateCompositeKey(maquetteObjectType, []string{maquetteID})
}

// getMaquetteByID is an internal helper to retrieve and unmarshal a maquette.
func (s *RegistryContract) getMaquetteByID(ctx contractapi.TransactionContextInterface, maquetteID string) (*model.Maquette, error) {
	maquetteKey, err := s.createMaquetteCompositeKey(ctx, maquetteID)
	if err != nil {
		return nil, err
	}
	maquetteBytes, err := ctx.GetStub().GetState(maquetteKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read maquette '%s' from ledger: %w", maquetteID, err)
	}
	if maquetteBytes == nil {
		return nil, fmt.Errorf("maquette '%s': %w", maquetteID, ErrNotFound)
	}
	var maquette model.Maquette
	if err := json.Unmarshal(maquetteBytes, &maquette); err != nil {
		return nil, fmt.Errorf("failed to unmarshal maquette '%s': %w", maquetteID, err)
	}
	if maquette.ObjectIDs == nil {
		maquette.ObjectIDs = []string{}
	}
	return &maquette, nil
}

func (s *RegistryContract) putMaquette(ctx contractapi.TransactionContextInterface, maquette *model.Maquette) error {
	maquetteKey, err := s.createMaquetteCompositeKey(ctx, maquette.ID)
	if err != nil {
		return err
	}
	maquetteBytes, err := json.Marshal(maquette)
	if err != nil {
		return fmt.Errorf("failed to marshal maquette '%s': %w", maquette.ID, err)
	}
	if err := ctx.GetStub().PutState(maquetteKey, maquetteBytes); err != nil {
		return fmt.Errorf("failed to save maquette '%s': %w", maquette.ID, err)
	}
	return nil
}

// DepositMaquette records a parent design model. Depositor role required.
// Maquette attributes are immutable after deposit; only the child object
// list grows as objects are deposited under it.
func (s *RegistryContract) DepositMaquette(ctx contractapi.TransactionContextInterface,
	maquetteID, name, architect, geoDescriptor, programme string,
	deliveryDate int64, ifcCID, metadataCID string) error {

	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DepositMaquette: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleDepositor); err != nil {
		return err
	}

	logger.Infof("Depositor '%s' (alias: '%s') depositing maquette '%s': %s", actor.fullID, actor.alias, maquetteID, name)

	// The trimmed id is what the composite key is built from; store the
	// same form so the record matches its own key.
	maquetteID = strings.TrimSpace(maquetteID)
	if err := s.validateRequiredString(maquetteID, "maquetteID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(ifcCID, "ifcCID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(architect, "architect", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(geoDescriptor, "geoDescriptor", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(programme, "programme", maxDescriptionLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(metadataCID, "metadataCID", maxStringInputLength); err != nil {
		return err
	}

	maquetteKey, err := s.createMaquetteCompositeKey(ctx, maquetteID)
	if err != nil {
		return err
	}
	existing, err := ctx.GetStub().GetState(maquetteKey)
	if err != nil {
		return fmt.Errorf("DepositMaquette: failed to check for existing maquette '%s': %w", maquetteID, err)
	}
	if existing != nil {
		return fmt.Errorf("maquette '%s' already exists: %w", maquetteID, ErrDuplicateID)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}

	maquette := model.Maquette{
		ObjectType:    maquetteObjectType,
		ID:            maquetteID,
		Name:          name,
		Architect:     architect,
		GeoDescriptor: geoDescriptor,
		Programme:     programme,
		DeliveryDate:  deliveryDate,
		DepositedAt:   now,
		IfcCID:        ifcCID,
		MetadataCID:   metadataCID,
		Depositor:     actor.fullID,
		ObjectIDs:     []string{},
		Active:        true,
	}
	if err := s.putMaquette(ctx, &maquette); err != nil {
		return fmt.Errorf("DepositMaquette: %w", err)
	}
	if _, err := s.incrementCounter(ctx, maquetteCountKey); err != nil {
		return fmt.Errorf("DepositMaquette: %w", err)
	}

	s.emitRegistryEvent(ctx, "MaquetteDeposited", actor, now, map[string]interface{}{
		"maquetteId": maquetteID,
		"name":       name,
		"ifcCid":     ifcCID,
	})
	logger.Infof("Maquette '%s' deposited successfully by '%s'", maquetteID, actor.alias)
	return nil
}

// DeactivateMaquette marks a maquette as removed. Admin only and
// irreversible; the record and its child list stay queryable. Objects
// may still be deposited under it (existence-only reference check).
func (s *RegistryContract) DeactivateMaquette(ctx contractapi.TransactionContextInterface, maquetteID string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DeactivateMaquette: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireAdmin(); err != nil {
		return fmt.Errorf("DeactivateMaquette: %w", err)
	}

	maquette, err := s.getMaquetteByID(ctx, maquetteID)
	if err != nil {
		return err
	}
	if !maquette.Active {
		logger.Infof("DeactivateMaquette: maquette '%s' is already inactive. No changes made.", maquetteID)
		return nil
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}
	maquette.Active = false
	if err := s.putMaquette(ctx, maquette); err != nil {
		return fmt.Errorf("DeactivateMaquette: %w", err)
	}

	s.emitRegistryEvent(ctx, "MaquetteDeactivated", actor, now, map[string]interface{}{
		"maquetteId": maquetteID,
	})
	logger.Infof("Maquette '%s' deactivated by admin '%s'", maquetteID, actor.alias)
	return nil
}

// GetMaquette returns the maquette record. Unrestricted read.
func (s *RegistryContract) GetMaquette(ctx contractapi.TransactionContextInterface, maquetteID string) (*model.Maquette, error) {
	return s.getMaquetteByID(ctx, maquetteID)
}

// GetMaquetteCount returns the number of maquettes ever deposited.
func (s *RegistryContract) GetMaquetteCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return s.readCounter(ctx, maquetteCountKey)
}
