package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidPlan        = errors.New("plan not in catalog")
	ErrClientExists       = errors.New("client already exists and is active")
	ErrProvisioningFailed = errors.New("provisioning failed")
	ErrArtifactMissing    = errors.New("credential artifact missing")
	ErrQrGenerationFailed = errors.New("qr generation failed")
	ErrStoreUnavailable   = errors.New("registry store unavailable")
	ErrForbidden          = errors.New("forbidden")
	ErrNoPendingPurchase  = errors.New("no pending purchase")
	ErrInvalidTransition  = errors.New("invalid purchase transition")
)

// ProvisioningError carries the diagnostic output of a failed provisioning run.
type ProvisioningError struct {
	ClientID string
	Output   string
}

func (e *ProvisioningError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("provisioning %q failed", e.ClientID)
	}
	return fmt.Sprintf("provisioning %q failed: %s", e.ClientID, e.Output)
}

func (e *ProvisioningError) Unwrap() error { return ErrProvisioningFailed }

// ArtifactError reports an expected artifact file that is absent after provisioning.
type ArtifactError struct {
	Path string
}

func (e *ArtifactError) Error() string { return fmt.Sprintf("artifact missing: %s", e.Path) }

func (e *ArtifactError) Unwrap() error { return ErrArtifactMissing }
