package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOptions_RebaseRequiresRefspec(t *testing.T) {
	err := ValidateOptions("Rebase", map[string]any{})
	assert.Error(t, err)

	err = ValidateOptions("Rebase", map[string]any{"refspec": "fedora:stable"})
	assert.NoError(t, err)
}

func TestValidateOptions_UnknownMethodPassesThrough(t *testing.T) {
	assert.NoError(t, ValidateOptions("SomeFutureMethod", map[string]any{"anything": 1}))
}

func TestValidateOptions_UpgradeHasNoRequiredFields(t *testing.T) {
	assert.NoError(t, ValidateOptions("Upgrade", map[string]any{"allow-downgrade": true}))
}

func TestValidateOptions_UpdateDeploymentRequiresID(t *testing.T) {
	assert.Error(t, ValidateOptions("UpdateDeployment", map[string]any{}))
	assert.NoError(t, ValidateOptions("UpdateDeployment", map[string]any{"deployment-id": "fedora_1"}))
}
