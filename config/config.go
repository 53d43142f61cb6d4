// Package config loads YAML-tagged tunables for constructing a Server,
// Client, or transfer Manager/ClientManager: a small schema struct
// decoded with gopkg.in/yaml.v2, with defaults filled in for anything
// the file omits.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Default tunables, used whenever a config omits the field outright (the
// zero value of the YAML-decoded field is indistinguishable from "not
// set" for these, so defaults are applied by the Load helpers below
// rather than by struct field zero values).
const (
	DefaultWindow            = 4096
	DefaultMaxChunkSizeBytes = 1024
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 2 * time.Second
	DefaultWorkQueueWidth    = 4
)

// ServerConfig configures a Server and the Services it registers,
// including the transfer Manager's window and chunk-size defaults for
// every ReadHandler/WriteHandler it hosts unless a handler overrides
// them itself.
type ServerConfig struct {
	Window            uint32 `yaml:"window"`
	MaxChunkSizeBytes uint32 `yaml:"max_chunk_size_bytes"`
}

// ClientConfig configures a Client and the Channels it binds.
type ClientConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// TransferConfig configures a transfer ClientManager: how much a READ
// session is willing to buffer before acking, how large a WRITE chunk it
// will offer, and how many workers drain its WorkQueue.
type TransferConfig struct {
	MaxBytesToReceive uint32        `yaml:"max_bytes_to_receive"`
	DefaultChunkSize  uint32        `yaml:"default_chunk_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	WorkQueueWidth    int64         `yaml:"work_queue_width"`
}

func (this *ServerConfig) applyDefaults() {
	if this.Window == 0 {
		this.Window = DefaultWindow
	}
	if this.MaxChunkSizeBytes == 0 {
		this.MaxChunkSizeBytes = DefaultMaxChunkSizeBytes
	}
}

func (this *ClientConfig) applyDefaults() {
	if this.MaxRetries == 0 {
		this.MaxRetries = DefaultMaxRetries
	}
	if this.RetryDelay == 0 {
		this.RetryDelay = DefaultRetryDelay
	}
}

func (this *TransferConfig) applyDefaults() {
	if this.MaxBytesToReceive == 0 {
		this.MaxBytesToReceive = DefaultWindow
	}
	if this.DefaultChunkSize == 0 {
		this.DefaultChunkSize = DefaultMaxChunkSizeBytes
	}
	if this.MaxRetries == 0 {
		this.MaxRetries = DefaultMaxRetries
	}
	if this.RetryDelay == 0 {
		this.RetryDelay = DefaultRetryDelay
	}
	if this.WorkQueueWidth == 0 {
		this.WorkQueueWidth = DefaultWorkQueueWidth
	}
}

// LoadServerConfig decodes a ServerConfig from data, applying defaults to
// any field the YAML omits.
func LoadServerConfig(data []byte) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadClientConfig decodes a ClientConfig from data, applying defaults to
// any field the YAML omits.
func LoadClientConfig(data []byte) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadTransferConfig decodes a TransferConfig from data, applying
// defaults to any field the YAML omits.
func LoadTransferConfig(data []byte) (*TransferConfig, error) {
	cfg := &TransferConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ReadServerConfigFile loads a ServerConfig from a file on disk.
func ReadServerConfigFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadServerConfig(data)
}

// ReadClientConfigFile loads a ClientConfig from a file on disk.
func ReadClientConfigFile(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadClientConfig(data)
}

// ReadTransferConfigFile loads a TransferConfig from a file on disk.
func ReadTransferConfigFile(path string) (*TransferConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadTransferConfig(data)
}
