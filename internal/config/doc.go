// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for nova.
//
// # Key Types
//
//   - Config: complete configuration (data dir, storage, server, provider, log)
//   - ValidateErrors: every validation problem found in one pass
//   - Duration: time.Duration stored as a "2m30s" string
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	kv, err := storage.Open(cfg.StorageOptions())
//
// Reload on change:
//
//	config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
//
// # Environment
//
// NOVA_DATA_DIR, NOVA_STORAGE, NOVA_ADDR, NOVA_LOG_LEVEL,
// NOVA_REQUEST_TIMEOUT and NOVA_HOSTED_MODEL override the file. A .env file
// in the working directory is read first.
package config
