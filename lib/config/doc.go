// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the purple-matrix host configuration.
//
// Configuration comes from exactly one YAML file, named either by the
// --config flag or the PURPLE_MATRIX_CONFIG environment variable. There
// is no search path. Running without a file uses [Default], which is
// what a plugin host embedding the manager gets.
//
// ${HOME} and ${XDG_DATA_HOME:-fallback} patterns in path fields are
// expanded after loading.
package config
