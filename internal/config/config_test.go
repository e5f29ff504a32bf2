package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsFromEnv(t *testing.T) {
	t.Setenv("APPLICATION_NAME", "wordcount")
	d, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "wordcount", d.ApplicationName)
	assert.Equal(t, ClusterLocal, d.ClusterMode)
	assert.Equal(t, 30000, d.CheckpointIntervalMs)
	assert.Equal(t, 300000, d.CheckpointTimeoutMs)
	assert.Equal(t, 1024, d.PubSubChannelSize)
	assert.Equal(t, UserErrorFailTask, d.UserErrorPolicy)
}

func TestLoadRejectsMissingApplicationName(t *testing.T) {
	os.Unsetenv("APPLICATION_NAME")
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsUnknownClusterMode(t *testing.T) {
	t.Setenv("APPLICATION_NAME", "x")
	t.Setenv("CLUSTER_MODE", "Kubernetes")
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsTimeoutNotExceedingInterval(t *testing.T) {
	d := &Descriptor{
		ApplicationName:      "x",
		ClusterMode:          ClusterLocal,
		CheckpointIntervalMs: 30000,
		CheckpointTimeoutMs:  10000,
		PubSubChannelSize:    1024,
		UserErrorPolicy:      UserErrorFailTask,
	}
	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}
