/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clocksyncd.yaml")
	content := "kp: 0.5\nwait_sync: true\nslave_clock: /dev/ptp0\n"
	require.NoError(t, writeFile(path, content))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.KP)
	require.InDelta(t, 0.5, *f.KP, 1e-9)
	require.NotNil(t, f.WaitSync)
	require.True(t, *f.WaitSync)
	require.Equal(t, "/dev/ptp0", *f.SlaveClock)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/clocksyncd.yaml")
	require.Error(t, err)
}

func TestLoadLeavesUnsetFieldsNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clocksyncd.yaml")
	require.NoError(t, writeFile(path, "kp: 0.5\n"))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.KP)
	require.Nil(t, f.KI)
	require.Nil(t, f.WaitSync)
	require.Nil(t, f.SlaveClock)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
