// Package config loads the runtime's recognized configuration keys via
// Viper: an optional config file with environment overrides layered on
// top.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ErrConfig wraps a missing or invalid configuration property, fatal at
// startup.
var ErrConfig = errors.New("config: invalid configuration")

// ClusterMode selects the resource manager the coordinator drives.
type ClusterMode string

const (
	ClusterLocal      ClusterMode = "Local"
	ClusterStandalone ClusterMode = "Standalone"
	ClusterYARN       ClusterMode = "YARN"
)

// UserErrorPolicy mirrors runnable.ErrorPolicy without importing it, so
// config stays a leaf package; internal/worker converts this into the
// runnable enum when building a task's Context.
type UserErrorPolicy string

const (
	UserErrorFailTask   UserErrorPolicy = "FailTask"
	UserErrorLogAndSkip UserErrorPolicy = "LogAndSkip"
)

// Descriptor is the typed view over every recognized configuration key.
type Descriptor struct {
	ApplicationName string
	ClusterMode     ClusterMode
	CoordinatorAddr string

	KeyedStateBackend    string
	OperatorStateBackend string
	CheckpointIntervalMs int
	CheckpointTimeoutMs  int
	PubSubChannelSize    int
	UserErrorPolicy      UserErrorPolicy

	// S3CheckpointBucket/Prefix are only consulted when
	// OperatorStateBackend/KeyedStateBackend is "S3".
	S3CheckpointBucket string
	S3CheckpointPrefix string
}

// Load reads the named config file (if configPath is non-empty; a named
// file that cannot be read is an ErrConfig error) then applies
// environment overrides, returning a validated Descriptor.
func Load(configPath string) (*Descriptor, error) {
	v := viper.New()
	v.SetDefault("keyed_state_backend", "Memory")
	v.SetDefault("operator_state_backend", "Memory")
	v.SetDefault("checkpoint_interval_ms", 30000)
	v.SetDefault("checkpoint_timeout_ms", 300000)
	v.SetDefault("pub_sub_channel_size", 1024)
	v.SetDefault("user_error_policy", string(UserErrorFailTask))
	v.SetDefault("cluster_mode", string(ClusterLocal))
	v.SetDefault("coordinator_address", "localhost:7070")
	v.SetDefault("s3_checkpoint_bucket", "")
	v.SetDefault("s3_checkpoint_prefix", "checkpoints")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrConfig, configPath, err)
		}
	}

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	_ = v.BindEnv("application_name", "APPLICATION_NAME")
	_ = v.BindEnv("cluster_mode", "CLUSTER_MODE")
	_ = v.BindEnv("coordinator_address", "COORDINATOR_ADDRESS")

	d := &Descriptor{
		ApplicationName:      v.GetString("application_name"),
		ClusterMode:          ClusterMode(v.GetString("cluster_mode")),
		CoordinatorAddr:      v.GetString("coordinator_address"),
		KeyedStateBackend:    v.GetString("keyed_state_backend"),
		OperatorStateBackend: v.GetString("operator_state_backend"),
		CheckpointIntervalMs: v.GetInt("checkpoint_interval_ms"),
		CheckpointTimeoutMs:  v.GetInt("checkpoint_timeout_ms"),
		PubSubChannelSize:    v.GetInt("pub_sub_channel_size"),
		UserErrorPolicy:      UserErrorPolicy(v.GetString("user_error_policy")),
		S3CheckpointBucket:   v.GetString("s3_checkpoint_bucket"),
		S3CheckpointPrefix:   v.GetString("s3_checkpoint_prefix"),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate rejects configuration that would fail at startup rather than
// surfacing as a confusing error mid-run.
func (d *Descriptor) Validate() error {
	if d.ApplicationName == "" {
		return fmt.Errorf("%w: application_name is required", ErrConfig)
	}
	switch d.ClusterMode {
	case ClusterLocal, ClusterStandalone, ClusterYARN:
	default:
		return fmt.Errorf("%w: cluster_mode %q not in {Local, Standalone, YARN}", ErrConfig, d.ClusterMode)
	}
	if d.CheckpointIntervalMs <= 0 {
		return fmt.Errorf("%w: checkpoint_interval_ms must be positive", ErrConfig)
	}
	if d.CheckpointTimeoutMs <= d.CheckpointIntervalMs {
		return fmt.Errorf("%w: checkpoint_timeout_ms must exceed checkpoint_interval_ms", ErrConfig)
	}
	if d.PubSubChannelSize <= 0 {
		return fmt.Errorf("%w: pub_sub_channel_size must be positive", ErrConfig)
	}
	switch d.UserErrorPolicy {
	case UserErrorFailTask, UserErrorLogAndSkip:
	default:
		return fmt.Errorf("%w: user_error_policy %q not in {FailTask, LogAndSkip}", ErrConfig, d.UserErrorPolicy)
	}
	return nil
}
