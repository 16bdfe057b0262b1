package walmux

import (
	"errors"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v2"

	"github.com/walmux/walmux/utils/log"
)

// Config is the yaml-friendly form of a Log's settings, for embedding
// in a host application's config file. Sizes are byte strings such as
// "512M" or "1G".
type Config struct {
	Directory string
	Options   Options
}

func (c *Config) Parse(data []byte) error {
	var aux struct {
		Directory       string `yaml:"directory"`
		LogLevel        string `yaml:"log_level"`
		RotateThreshold string `yaml:"rotate_threshold"`
		MaxRecordSize   string `yaml:"max_record_size"`
		SyncPolicy      string `yaml:"sync_policy"`
		SyncThreshold   string `yaml:"sync_threshold"`
		Compression     string `yaml:"compression"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Directory == "" {
		return errors.New("walmux: config has no directory")
	}
	c.Directory = aux.Directory

	if aux.LogLevel != "" {
		switch strings.ToLower(aux.LogLevel) {
		case "fatal":
			log.SetLevel(log.FATAL)
		case "error":
			log.SetLevel(log.ERROR)
		case "warning":
			log.SetLevel(log.WARNING)
		case "debug":
			log.SetLevel(log.DEBUG)
		case "info":
			fallthrough
		default:
			log.SetLevel(log.INFO)
		}
	}

	if aux.RotateThreshold != "" {
		n, err := bytefmt.ToBytes(aux.RotateThreshold)
		if err != nil {
			log.Error("invalid value: %v for rotate_threshold, using the default", aux.RotateThreshold)
		} else {
			c.Options.RotateThreshold = int64(n)
		}
	}

	if aux.MaxRecordSize != "" {
		n, err := bytefmt.ToBytes(aux.MaxRecordSize)
		if err != nil {
			log.Error("invalid value: %v for max_record_size, using the default", aux.MaxRecordSize)
		} else {
			c.Options.MaxRecordSize = int64(n)
		}
	}

	if aux.SyncThreshold != "" {
		n, err := bytefmt.ToBytes(aux.SyncThreshold)
		if err != nil {
			log.Error("invalid value: %v for sync_threshold, using the default", aux.SyncThreshold)
		} else {
			c.Options.SyncThreshold = int64(n)
		}
	}

	switch strings.ToLower(aux.SyncPolicy) {
	case "", "on_append", "append":
		c.Options.Sync = SyncOnAppend
	case "manual", "none":
		c.Options.Sync = SyncManual
	case "threshold", "on_threshold":
		c.Options.Sync = SyncOnThreshold
	default:
		log.Error("invalid value: %v for sync_policy, syncing on append", aux.SyncPolicy)
		c.Options.Sync = SyncOnAppend
	}

	if aux.Compression != "" {
		compression, err := strconv.ParseBool(aux.Compression)
		if err != nil {
			log.Error("invalid value: %v for compression, disabling compression", aux.Compression)
		} else {
			c.Options.Compression = compression
		}
	}

	return nil
}
