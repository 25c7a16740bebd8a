package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// UpgradeOptions is the vardict payload for the Upgrade method (§6).
type UpgradeOptions struct {
	AllowDowngrade bool `json:"allow-downgrade"`
	CacheOnly      bool `json:"cache-only"`
	SkipPurge      bool `json:"skip-purge"`
}

// DeployOptions is the vardict payload for the Deploy method.
type DeployOptions struct {
	Revision  string `json:"revision"`
	CacheOnly bool   `json:"cache-only"`
}

// RebaseOptions is the vardict payload for the Rebase method; a refspec
// is mandatory (§2 RefspecParser is always consulted before a rebase).
type RebaseOptions struct {
	Refspec  string `json:"refspec" validate:"required"`
	Revision string `json:"revision,omitempty"`
}

// RollbackOptions is the vardict payload for the Rollback method.
type RollbackOptions struct {
	SkipPurge bool `json:"skip-purge"`
}

// CleanupOptions selects which cleanup classes to run.
type CleanupOptions struct {
	Base       bool `json:"base"`
	Pending    bool `json:"pending"`
	Rollback   bool `json:"rollback"`
	RepoMD     bool `json:"repomd"`
}

// PkgChangeOptions carries the package add/remove lists for a layering
// change.
type PkgChangeOptions struct {
	AddPackages    []string `json:"add-packages"`
	RemovePackages []string `json:"remove-packages"`
}

// UpdateDeploymentOptions targets a deployment for in-place mutation.
type UpdateDeploymentOptions struct {
	DeploymentID string `json:"deployment-id" validate:"required"`
}

// SetInitramfsStateOptions toggles the local initramfs regeneration mode.
type SetInitramfsStateOptions struct {
	Enabled bool     `json:"enabled"`
	Args    []string `json:"args"`
}

// KernelArgsOptions edits the kernel command line.
type KernelArgsOptions struct {
	Append  []string `json:"append"`
	Delete  []string `json:"delete"`
	Replace []string `json:"replace"`
}

// FinalizeDeploymentOptions confirms a staged deployment should finalize
// on the next boot.
type FinalizeDeploymentOptions struct {
	DeploymentID string `json:"deployment-id" validate:"required"`
}

// RefreshMdOptions requests repo metadata refresh.
type RefreshMdOptions struct {
	Force bool `json:"force"`
}

// methodOptionType maps a method name to a pointer to a zero value of its
// options struct, used to pick a validation target for InvokeMethod.
var methodOptionType = map[string]func() any{
	"Upgrade":            func() any { return &UpgradeOptions{} },
	"Deploy":             func() any { return &DeployOptions{} },
	"Rebase":             func() any { return &RebaseOptions{} },
	"Rollback":           func() any { return &RollbackOptions{} },
	"Cleanup":            func() any { return &CleanupOptions{} },
	"PkgChange":          func() any { return &PkgChangeOptions{} },
	"UpdateDeployment":   func() any { return &UpdateDeploymentOptions{} },
	"SetInitramfsState":  func() any { return &SetInitramfsStateOptions{} },
	"KernelArgs":         func() any { return &KernelArgsOptions{} },
	"FinalizeDeployment": func() any { return &FinalizeDeploymentOptions{} },
	"RefreshMd":          func() any { return &RefreshMdOptions{} },
}

// ValidateOptions decodes raw (a JSON-ish vardict, as received over the
// wire) into method's options struct and runs struct-tag validation
// against it. Unknown methods pass options through unvalidated, since
// they carry no vardict payload (e.g. future additions).
func ValidateOptions(method string, raw map[string]any) error {
	newOpts, ok := methodOptionType[method]
	if !ok {
		return nil
	}
	opts := newOpts()

	blob, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("ipc: marshaling options for %s: %w", method, err)
	}
	if err := json.Unmarshal(blob, opts); err != nil {
		return fmt.Errorf("ipc: decoding options for %s: %w", method, err)
	}
	if err := validate.Struct(opts); err != nil {
		return fmt.Errorf("ipc: invalid options for %s: %w", method, err)
	}
	return nil
}
