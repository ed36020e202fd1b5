//go:build integration

package redischannel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certportal/internal/availability"
	"certportal/internal/availability/redischannel"
	platformredis "certportal/internal/platform/redis"
	"certportal/pkg/testutil/containers"
)

func TestChannel_RelaysTransitionsBetweenInstances(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}

	publisher := redischannel.New(client, "instance-a")
	subscriber := redischannel.New(client, "instance-b")

	remote := availability.New(availability.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = subscriber.Run(ctx, remote) }()

	status := availability.Status{Mode: availability.ModeMaintenance, Message: "patching"}
	require.Eventually(t, func() bool {
		require.NoError(t, publisher.Publish(ctx, status))
		return remote.Current(context.Background()).Mode == availability.ModeMaintenance
	}, 5*time.Second, 100*time.Millisecond, "the remote instance adopts the published status")
	assert.Equal(t, "patching", remote.Current(context.Background()).Message)
}

func TestChannel_IgnoresItsOwnPublishes(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}

	self := redischannel.New(client, "instance-a")
	local := availability.New(availability.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = self.Run(ctx, local) }()

	// Give the subscription a moment to establish before publishing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, self.Publish(ctx, availability.Status{Mode: availability.ModeMaintenance}))
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, availability.ModeOnline, local.Current(context.Background()).Mode,
		"a publish from the same instance id must not loop back")
}
