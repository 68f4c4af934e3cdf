package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nimgatt/gatts"
)

// Config is the YAML service definition the simulator serves.
type Config struct {
	Name     string          `yaml:"name"`
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	UUID            string       `yaml:"uuid"`
	Characteristics []CharConfig `yaml:"characteristics"`
}

type CharConfig struct {
	UUID       string   `yaml:"uuid"`
	Properties []string `yaml:"properties"`
	Value      string   `yaml:"value"` // hex encoded
}

func loadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// defaultConfig is served when no --config file is given: a heart rate
// service with a notifiable measurement and a readable location.
func defaultConfig() *Config {
	return &Config{
		Name: "gatts-sim",
		Services: []ServiceConfig{
			{
				UUID: "180d",
				Characteristics: []CharConfig{
					{UUID: "2a37", Properties: []string{"notify"}, Value: "003c"},
					{UUID: "2a38", Properties: []string{"read"}, Value: "01"},
				},
			},
		},
	}
}

func parseProperties(names []string) (gatts.Property, error) {
	var p gatts.Property
	for _, name := range names {
		switch name {
		case "broadcast":
			p |= gatts.CharBroadcast
		case "read":
			p |= gatts.CharRead
		case "write-no-response":
			p |= gatts.CharWriteNR
		case "write":
			p |= gatts.CharWrite
		case "notify":
			p |= gatts.CharNotify
		case "indicate":
			p |= gatts.CharIndicate
		default:
			return 0, fmt.Errorf("unknown characteristic property %q", name)
		}
	}
	return p, nil
}

// buildServices populates srv from cfg and returns the created
// characteristics in definition order.
func buildServices(srv *gatts.Server, cfg *Config) ([]*gatts.Characteristic, error) {
	var chars []*gatts.Characteristic
	for _, sc := range cfg.Services {
		su, err := gatts.ParseUUID(sc.UUID)
		if err != nil {
			return nil, err
		}
		svc, err := srv.CreateService(su)
		if err != nil {
			return nil, err
		}
		for _, cc := range sc.Characteristics {
			cu, err := gatts.ParseUUID(cc.UUID)
			if err != nil {
				return nil, err
			}
			props, err := parseProperties(cc.Properties)
			if err != nil {
				return nil, fmt.Errorf("characteristic %s: %w", cc.UUID, err)
			}
			char := svc.AddCharacteristic(cu, props)
			if cc.Value != "" {
				v, err := hex.DecodeString(cc.Value)
				if err != nil {
					return nil, fmt.Errorf("characteristic %s value: %w", cc.UUID, err)
				}
				char.SetValue(v)
			}
			chars = append(chars, char)
		}
	}
	return chars, nil
}
