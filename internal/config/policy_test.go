package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadPolicyDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := LoadPolicy(zap.NewNop())
	require.NoError(t, err)

	p := holder.Get()
	assert.Equal(t, 3, p.Notification.MaxAttempts)
	assert.Equal(t, 5*time.Minute, p.Notification.RetryBackoff)
	assert.Equal(t, 15*24*time.Hour, p.Accreditation.ReapplyCooldown)
	assert.Equal(t, 5, p.Inventory.DefaultMinStock)
	assert.Equal(t, "cash", p.Order.DefaultPaymentMethod)
}

func TestValidatePolicy(t *testing.T) {
	p := DefaultPolicy()
	p.Notification.MaxAttempts = 0
	p.Inventory.DefaultMinStock = -1

	err := validatePolicy(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxAttempts")
	assert.Contains(t, err.Error(), "defaultMinStock")
}

func TestNilPolicyHolderServesDefaults(t *testing.T) {
	var h *PolicyHolder
	assert.Equal(t, DefaultPolicy(), h.Get())
}
