package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEntitlementActiveAt(t *testing.T) {
	now := time.Now()
	ent := Entitlement{IsActive: true, ExpiresAt: Millis(now.Add(time.Hour))}

	assert.True(t, ent.ActiveAt(now))
	assert.False(t, ent.ActiveAt(now.Add(2*time.Hour)))

	ent.IsActive = false
	assert.False(t, ent.ActiveAt(now))
}

func TestEntitlementExpireKeepsIdentity(t *testing.T) {
	ent := Entitlement{
		IsActive:      true,
		ExpiresAt:     12345,
		AutoRenew:     true,
		Method:        MethodKaspa,
		PayerAddress:  "kaspa:qzexample",
		HourlyRate:    decimal.RequireFromString("0.5"),
		DurationHours: 24,
	}
	ent.Expire()

	assert.False(t, ent.IsActive)
	assert.Zero(t, ent.ExpiresAt)
	assert.False(t, ent.AutoRenew)
	assert.Equal(t, MethodKaspa, ent.Method)
	assert.Equal(t, "kaspa:qzexample", ent.PayerAddress)
	assert.Equal(t, 24, ent.PlanSpec().DurationHours)
}

func TestNetworkByChainID(t *testing.T) {
	net, ok := NetworkByChainID("0x3173b")
	assert.True(t, ok)
	assert.Equal(t, NetworkMainnet, net)

	net, ok = NetworkByChainID("0x28C64") // case-insensitive
	assert.True(t, ok)
	assert.Equal(t, NetworkTestnet, net)

	_, ok = NetworkByChainID("0x1")
	assert.False(t, ok)
}

func TestExplorerTxURL(t *testing.T) {
	url := NetworkMainnet.ExplorerTxURL("0xabc")
	assert.Contains(t, url, "/tx/0xabc")
	assert.Empty(t, Network("unknown").ExplorerTxURL("0xabc"))
}
