// Copyright 2022 The codesjoy Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package instance carries the identity of the running process (daemon or UI).
package instance

import "sync"

var global = &instance{metadata: map[string]string{}}

// Init sets the process name and version returned by Name and Version.
func Init(name, version string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.name = name
	global.version = version
}

// Name returns the process name set by Init.
func Name() string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.name
}

// Version returns the process version set by Init.
func Version() string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.version
}

// Metadata returns a copy of the process metadata map.
func Metadata() map[string]string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	md := make(map[string]string, len(global.metadata))
	for k, v := range global.metadata {
		md[k] = v
	}
	return md
}

// SetMetadata records an arbitrary key/value pair against the process identity.
func SetMetadata(key, value string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.metadata[key] = value
}

type instance struct {
	mu       sync.RWMutex
	name     string
	version  string
	metadata map[string]string
}
