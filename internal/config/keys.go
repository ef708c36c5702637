package config

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoAPIKey is returned when neither the primary nor the fallback variable
// for a service is set.
var ErrNoAPIKey = errors.New("no API key configured")

// Service names a logical consumer of the LLM API.
type Service string

const (
	ServiceContent  Service = "content"
	ServiceChat     Service = "chat"
	ServiceAnalysis Service = "analysis"
)

// Services lists every service in report order.
var Services = []Service{ServiceContent, ServiceChat, ServiceAnalysis}

// KeyVars names the environment variables consulted for one service.
type KeyVars struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
}

type KeysConfig struct {
	Content  KeyVars `yaml:"content"`
	Chat     KeyVars `yaml:"chat"`
	Analysis KeyVars `yaml:"analysis"`
}

// KeySource tells where a resolved key came from.
type KeySource string

const (
	KeyPrimary  KeySource = "primary"
	KeyFallback KeySource = "fallback"
	KeyMissing  KeySource = "missing"
)

// Keys resolves API keys per service at the point of use.
type Keys struct {
	vars   KeysConfig
	lookup func(string) (string, bool)
}

// NewKeys resolves against the process environment.
func NewKeys(vars KeysConfig) *Keys {
	return NewKeysWithLookup(vars, os.LookupEnv)
}

// NewKeysWithLookup resolves against a custom lookup, mainly for tests.
func NewKeysWithLookup(vars KeysConfig, lookup func(string) (string, bool)) *Keys {
	return &Keys{vars: vars, lookup: lookup}
}

func (k *Keys) varsFor(s Service) KeyVars {
	switch s {
	case ServiceContent:
		return k.vars.Content
	case ServiceChat:
		return k.vars.Chat
	case ServiceAnalysis:
		return k.vars.Analysis
	}
	return KeyVars{}
}

// Resolve returns the key for s, trying the primary variable first.
func (k *Keys) Resolve(s Service) (string, KeySource, error) {
	v := k.varsFor(s)
	if key := k.get(v.Primary); key != "" {
		return key, KeyPrimary, nil
	}
	if key := k.get(v.Fallback); key != "" {
		return key, KeyFallback, nil
	}
	return "", KeyMissing, fmt.Errorf("%w for %s: set %s or %s", ErrNoAPIKey, s, v.Primary, v.Fallback)
}

// Func returns a resolver bound to one service, the shape the LLM clients take.
func (k *Keys) Func(s Service) func() (string, error) {
	return func() (string, error) {
		key, _, err := k.Resolve(s)
		return key, err
	}
}

// Report lists where each service's key would come from. Missing keys are
// not an error here; they fail at the point of use.
func (k *Keys) Report() map[Service]KeySource {
	out := make(map[Service]KeySource, len(Services))
	for _, s := range Services {
		_, src, _ := k.Resolve(s)
		out[s] = src
	}
	return out
}

func (k *Keys) get(name string) string {
	if name == "" || k.lookup == nil {
		return ""
	}
	v, _ := k.lookup(name)
	return v
}
