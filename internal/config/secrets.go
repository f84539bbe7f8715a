/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service/keys for OS keyring.
const (
	keyringService = "postgen"
	keyringDSN     = "history_dsn"
)

// SecretStore abstracts the keyring, so we can stub it in tests.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var secretStore SecretStore = osKeyring{}

// SetSecretStore replaces the keyring backend and returns the previous one.
func SetSecretStore(s SecretStore) SecretStore {
	prev := secretStore
	secretStore = s
	return prev
}

// GetHistoryDSN returns the stored Postgres DSN; an absent entry is "" without error.
func GetHistoryDSN() (string, error) {
	v, err := secretStore.Get(keyringService, keyringDSN)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetHistoryDSN stores the DSN; an empty value deletes it.
func SetHistoryDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		err := secretStore.Delete(keyringService, keyringDSN)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return secretStore.Set(keyringService, keyringDSN, dsn)
}
