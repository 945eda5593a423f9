package adapter

import (
	"context"

	"telegram-vpn-provisioning/internal/domain/model"
)

// Provisioner produces and locates the credential artifacts of a client.
type Provisioner interface {
	// Provision runs the external provisioning action and validates its artifacts.
	Provision(ctx context.Context, clientID string) (*model.Artifacts, error)
	// Locate returns the artifact paths of an existing client, synthesizing the QR if absent.
	Locate(ctx context.Context, clientID string) (*model.Artifacts, error)
	// Remove deletes both artifacts; it reports whether anything was removed.
	Remove(ctx context.Context, clientID string) (bool, error)
	// Discard deletes only the files a Provision call created, leaving older artifacts alone.
	Discard(ctx context.Context, art *model.Artifacts) error
}
