//go:build !darwin
// +build !darwin

package mididarwin

import (
	"testing"

	"github.com/leandrodaf/midiclock/internal/logger"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyDelivererRefusesToSend(t *testing.T) {
	d, err := NewDeliverer(&contracts.EngineOptions{Name: "test", Logger: logger.NewNopLogger()})
	require.NoError(t, err)

	assert.Error(t, d.Deliver(contracts.Address{}, contracts.Address{Port: 1}, []byte{0xf8}))
	_, err = d.(*DummyDeliverer).Destinations()
	assert.Error(t, err)
}
