// File: internal/infra/adapters/provisioner/script_provisioner.go
package provisioner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/infra/logging"
)

// maxOutput bounds the diagnostic output carried by a ProvisioningError.
const maxOutput = 2000

type Config struct {
	Command    []string // argv prefix; the client id is appended as the last argument
	ClientsDir string
	Timeout    time.Duration
}

// ScriptProvisioner invokes an external provisioning command and checks the files
// it is expected to leave under ClientsDir as {id}.conf and {id}.png.
type ScriptProvisioner struct {
	cfg    Config
	qr     *QREncoder
	logger *zerolog.Logger
}

var _ adapter.Provisioner = (*ScriptProvisioner)(nil)

func NewScriptProvisioner(cfg Config, logger *zerolog.Logger) (*ScriptProvisioner, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("%w: provisioner command is empty", domain.ErrInvalidArgument)
	}
	if cfg.ClientsDir == "" {
		return nil, fmt.Errorf("%w: clients dir is empty", domain.ErrInvalidArgument)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	l := logger.With().Str("component", "ScriptProvisioner").Logger()
	return &ScriptProvisioner{cfg: cfg, qr: NewQREncoder(), logger: &l}, nil
}

func (p *ScriptProvisioner) paths(clientID string) (conf, png string) {
	return filepath.Join(p.cfg.ClientsDir, clientID+".conf"),
		filepath.Join(p.cfg.ClientsDir, clientID+".png")
}

// Provision runs the command, bounded by the configured timeout. A zero exit
// status is not trusted on its own: the conf file must exist afterwards.
func (p *ScriptProvisioner) Provision(ctx context.Context, clientID string) (*model.Artifacts, error) {
	if clientID == "" || clientID != model.SanitizeClientID(clientID) {
		return nil, fmt.Errorf("%w: unsafe client id %q", domain.ErrInvalidArgument, clientID)
	}
	log := logging.With(logging.WithClientID(ctx, clientID), p.logger)
	defer logging.TraceDuration(log, "ScriptProvisioner.Provision")()

	confPath, pngPath := p.paths(clientID)
	before := onDisk(confPath, pngPath)

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, p.cfg.Command[1:]...), clientID)
	cmd := exec.CommandContext(runCtx, p.cfg.Command[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		output := truncate(strings.TrimSpace(out.String()))
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			output = strings.TrimSpace(fmt.Sprintf("timed out after %s. %s", p.cfg.Timeout, output))
		}
		log.Error().Err(err).Str("output", output).Msg("provisioning command failed")
		p.removeNew(log, before, confPath, pngPath)
		return nil, &domain.ProvisioningError{ClientID: clientID, Output: output}
	}
	log.Info().Dur("took", time.Since(start)).Msg("provisioning command finished")

	art, err := p.collect(ctx, clientID)
	if err != nil {
		p.removeNew(log, before, confPath, pngPath)
		return nil, err
	}
	for _, path := range []string{art.ConfPath, art.QRPath} {
		if path != "" && !before[path] {
			art.Created = append(art.Created, path)
		}
	}
	return art, nil
}

// Discard removes the files listed in art.Created.
func (p *ScriptProvisioner) Discard(ctx context.Context, art *model.Artifacts) error {
	if art == nil {
		return nil
	}
	for _, path := range art.Created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// onDisk reports which of paths exist right now.
func onDisk(paths ...string) map[string]bool {
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			seen[path] = true
		}
	}
	return seen
}

// removeNew deletes whatever a failed run left behind that was not there before it.
func (p *ScriptProvisioner) removeNew(log *zerolog.Logger, before map[string]bool, paths ...string) {
	for _, path := range paths {
		if before[path] {
			continue
		}
		err := os.Remove(path)
		switch {
		case err == nil:
			log.Warn().Str("path", path).Msg("removed partial artifact")
		case !errors.Is(err, os.ErrNotExist):
			log.Error().Err(err).Str("path", path).Msg("partial artifact cleanup failed")
		}
	}
}

// Locate returns the artifacts of an already provisioned client.
func (p *ScriptProvisioner) Locate(ctx context.Context, clientID string) (*model.Artifacts, error) {
	if clientID == "" || clientID != model.SanitizeClientID(clientID) {
		return nil, fmt.Errorf("%w: unsafe client id %q", domain.ErrInvalidArgument, clientID)
	}
	return p.collect(ctx, clientID)
}

func (p *ScriptProvisioner) collect(ctx context.Context, clientID string) (*model.Artifacts, error) {
	confPath, pngPath := p.paths(clientID)
	if _, err := os.Stat(confPath); err != nil {
		return nil, &domain.ArtifactError{Path: confPath}
	}
	art := &model.Artifacts{ConfPath: confPath, QRPath: pngPath}
	if _, err := os.Stat(pngPath); err == nil {
		return art, nil
	}

	if err := p.qr.EncodeFile(confPath, pngPath); err != nil {
		p.logger.Warn().Str("client_id", clientID).Err(err).Msg("qr synthesis failed")
		art.QRPath = ""
		art.QRErr = err
	}
	return art, nil
}

// Remove deletes both artifacts; absent files are not an error.
func (p *ScriptProvisioner) Remove(ctx context.Context, clientID string) (bool, error) {
	if clientID == "" || clientID != model.SanitizeClientID(clientID) {
		return false, fmt.Errorf("%w: unsafe client id %q", domain.ErrInvalidArgument, clientID)
	}
	removed := false
	confPath, pngPath := p.paths(clientID)
	for _, path := range []string{confPath, pngPath} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return removed, nil
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return "..." + s[len(s)-maxOutput:]
}
