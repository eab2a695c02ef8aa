package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/session"
	"github.com/alepar/radoneye/radoneye/session/sessiontest"
)

var (
	otherAdvertiser = session.Advertisement{Address: "11:22:33:44:55:66", Name: "Thermometer", Services: []string{"180f"}, Connectable: true}
	firstRD200      = session.Advertisement{Address: "C4:7C:8D:6A:01:01", Name: "FR:R20:SN0101", Services: []string{"00001523-1212-EFDE-1523-785FEABCD123"}, Connectable: true}
	secondRD200     = session.Advertisement{Address: "C4:7C:8D:6A:02:02", Name: "FR:R20:SN0202", Services: []string{session.ServiceUUID}, Connectable: true}
)

func TestDiscover_FirstMatchWins(t *testing.T) {
	transport := &sessiontest.Transport{
		Advertisements: []session.Advertisement{otherAdvertiser, firstRD200, secondRD200},
	}

	id, err := session.Discover(context.Background(), transport, session.DiscoverOptions{
		Adapter:     "hci0",
		ScanTimeout: 5 * time.Second,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, radoneye.Identity{Address: firstRD200.Address, Name: firstRD200.Name, Adapter: "hci0"}, id)
	assert.Equal(t, 1, transport.Scans())
}

func TestDiscover_ExplicitAddressSkipsScan(t *testing.T) {
	transport := &sessiontest.Transport{
		Advertisements: []session.Advertisement{firstRD200, secondRD200},
	}

	id, err := session.Discover(context.Background(), transport, session.DiscoverOptions{
		Adapter:     "hci1",
		Address:     secondRD200.Address,
		ScanTimeout: 5 * time.Second,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, secondRD200.Address, id.Address)
	assert.Equal(t, "hci1", id.Adapter)
	assert.Zero(t, transport.Scans(), "explicit address must not scan")
}

func TestDiscover_NotFound(t *testing.T) {
	transport := &sessiontest.Transport{
		Advertisements: []session.Advertisement{otherAdvertiser},
	}

	start := time.Now()
	_, err := session.Discover(context.Background(), transport, session.DiscoverOptions{
		ScanTimeout: 50 * time.Millisecond,
	}, nil)

	assert.ErrorIs(t, err, radoneye.ErrNotFound)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscover_ScanFailure(t *testing.T) {
	transport := &sessiontest.Transport{ScanErr: errors.New("hci0: no such device")}

	_, err := session.Discover(context.Background(), transport, session.DiscoverOptions{
		ScanTimeout: time.Second,
	}, nil)

	assert.True(t, radoneye.IsConnectError(err, radoneye.AdapterUnavailable), "got %v", err)
}

func TestDiscover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Discover(ctx, &sessiontest.Transport{}, session.DiscoverOptions{ScanTimeout: time.Second}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvertisement_AdvertisesRD200(t *testing.T) {
	assert.True(t, firstRD200.AdvertisesRD200())
	assert.True(t, session.Advertisement{Services: []string{"000015231212efde1523785feabcd123"}}.AdvertisesRD200())
	assert.False(t, otherAdvertiser.AdvertisesRD200())
	assert.False(t, session.Advertisement{}.AdvertisesRD200())
}
