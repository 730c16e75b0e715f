package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"buildtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Admin Operations ---

// BootstrapLedger initializes the registry with the calling identity as
// its first admin, holding every role. One-shot: fails once any admin
// exists. State is written directly so the bootstrap does not depend on
// the admin-gated registration path.
func (s *RegistryContract) BootstrapLedger(ctx contractapi.TransactionContextInterface) error {
	logger.Info("Attempting to bootstrap registry with initial admin...")
	im := NewIdentityManager(ctx)

	anyAdminAlreadyExists, err := im.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to check if any admin exists: %w", err)
	}
	if anyAdminAlreadyExists {
		msg := "registry already has admins or is bootstrapped. BootstrapLedger should not be re-run."
		logger.Info(msg)
		return errors.New(msg)
	}

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get caller identity for bootstrap: %w", err)
	}
	alias := actor.alias
	if alias == "" {
		alias = "bootstrap-admin"
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get timestamp: %w", err)
	}

	bootstrapAdminInfo := model.IdentityInfo{
		ObjectType:      identityObjectType,
		FullID:          actor.fullID,
		ShortName:       alias,
		OrganizationMSP: actor.mspID,
		Roles:           AllRoles(), // The bootstrap identity holds every role
		IsAdmin:         true,
		RegisteredBy:    actor.fullID,
		RegisteredAt:    now,
		LastUpdatedAt:   now,
	}
	identityKey, keyErr := im.createIdentityCompositeKey(actor.fullID)
	if keyErr != nil {
		return fmt.Errorf("BootstrapLedger: failed to create identity key for bootstrap admin '%s': %w", actor.fullID, keyErr)
	}
	bootstrapAdminInfoBytes, marshalErr := json.Marshal(bootstrapAdminInfo)
	if marshalErr != nil {
		return fmt.Errorf("BootstrapLedger: failed to marshal bootstrap admin IdentityInfo: %w", marshalErr)
	}
	if err := ctx.GetStub().PutState(identityKey, bootstrapAdminInfoBytes); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to save bootstrap admin IdentityInfo for '%s': %w", actor.fullID, err)
	}

	aliasKey, aliasKeyErr := im.createAliasCompositeKey(alias)
	if aliasKeyErr != nil {
		return fmt.Errorf("BootstrapLedger: failed to create alias key for bootstrap admin '%s': %w", alias, aliasKeyErr)
	}
	if err := ctx.GetStub().PutState(aliasKey, []byte(actor.fullID)); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to save bootstrap admin alias mapping '%s' -> '%s': %w", alias, actor.fullID, err)
	}

	adminFlagKey, flagKeyErr := im.createAdminFlagCompositeKey(actor.fullID)
	if flagKeyErr != nil {
		return fmt.Errorf("BootstrapLedger: failed to create admin flag key for '%s': %w", actor.fullID, flagKeyErr)
	}
	if err := ctx.GetStub().PutState(adminFlagKey, []byte("true")); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to set admin flag for bootstrap admin '%s': %w", actor.fullID, err)
	}

	logger.Infof("Registry bootstrapped. Identity '%s' (alias: '%s') is now admin with all roles.", actor.fullID, alias)
	return nil
}

// PauseRegistry halts every mutating operation. Admin only. Reads keep
// working while paused.
func (s *RegistryContract) PauseRegistry(ctx contractapi.TransactionContextInterface) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("PauseRegistry: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireAdmin(); err != nil {
		return fmt.Errorf("PauseRegistry: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(pausedKey, []byte("true")); err != nil {
		return fmt.Errorf("PauseRegistry: failed to set pause flag: %w", err)
	}
	s.emitRegistryEvent(ctx, "RegistryPaused", actor, now, nil)
	logger.Infof("Registry paused by admin '%s'", actor.alias)
	return nil
}

// UnpauseRegistry lifts a pause. Admin only.
func (s *RegistryContract) UnpauseRegistry(ctx contractapi.TransactionContextInterface) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UnpauseRegistry: failed to get actor info: %w", err)
	}
	im := NewIdentityManager(ctx)
	if err := im.RequireAdmin(); err != nil {
		return fmt.Errorf("UnpauseRegistry: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().DelState(pausedKey); err != nil {
		return fmt.Errorf("UnpauseRegistry: failed to clear pause flag: %w", err)
	}
	s.emitRegistryEvent(ctx, "RegistryUnpaused", actor, now, nil)
	logger.Infof("Registry unpaused by admin '%s'", actor.alias)
	return nil
}

// IsPaused reports whether the registry is halted. Unrestricted read.
func (s *RegistryContract) IsPaused(ctx contractapi.TransactionContextInterface) (bool, error) {
	flagBytes, err := ctx.GetStub().GetState(pausedKey)
	if err != nil {
		return false, fmt.Errorf("IsPaused: failed to read pause flag: %w", err)
	}
	return flagBytes != nil && string(flagBytes) == "true", nil
}
