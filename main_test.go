package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCommand(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var out bytes.Buffer
	err := run([]string{"ensdir", "--log-level", "error", "resolve", "--dataset", "data/ensToAddMock.json", "vitalik.eth", "nobody.eth"}, &out)
	require.NoError(err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(lines, 2)
	assert.JSONEq(`{"address":"0xd8da6bf26964af9d7eed9e03e53415d37aa96045"}`, lines[0])
	assert.JSONEq(`{"address":null}`, lines[1])
}

func TestResolveCommandProfile(t *testing.T) {
	assert := assert.New(t)

	dataDir := t.TempDir()
	assert.NoError(os.WriteFile(filepath.Join(dataDir, "ensToAdd.json"), []byte(`{"prod.eth":"0x983110309620d911731ac0932219af06091b6744"}`), 0o644))

	var out bytes.Buffer
	err := run([]string{"ensdir", "--profile", "prod", "--data-dir", dataDir, "--log-level", "error", "resolve", "prod.eth"}, &out)
	assert.NoError(err)
	assert.JSONEq(`{"address":"0x983110309620d911731ac0932219af06091b6744"}`, out.String())

	// dev profile selects the mock file, which this directory lacks
	err = run([]string{"ensdir", "--profile", "dev", "--data-dir", dataDir, "--log-level", "error", "resolve", "prod.eth"}, &out)
	assert.Error(err)
}

func TestResolveCommandNoArgs(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"ensdir", "--log-level", "error", "resolve", "--dataset", "data/ensToAddMock.json"}, &out)
	assert.Error(t, err)
}

func TestServeFailsOnBadDataset(t *testing.T) {
	assert := assert.New(t)

	dataDir := t.TempDir()
	assert.NoError(os.WriteFile(filepath.Join(dataDir, "ensToAddMock.json"), []byte(`["not","an","object"]`), 0o644))

	var out bytes.Buffer
	err := run([]string{"ensdir", "--profile", "dev", "--data-dir", dataDir, "--log-level", "error", "serve"}, &out)
	assert.ErrorContains(err, "loading directory")
}

func TestCommonFlagsAfterSubcommand(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dataDir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dataDir, "ensToAdd.json"), []byte(`{"prod.eth":"0x983110309620d911731ac0932219af06091b6744"}`), 0o644))

	var out bytes.Buffer
	err := run([]string{"ensdir", "resolve", "--profile", "prod", "--data-dir", dataDir, "--log-level", "error", "prod.eth"}, &out)
	require.NoError(err)
	assert.JSONEq(`{"address":"0x983110309620d911731ac0932219af06091b6744"}`, out.String())

	// a value given before the subcommand is not shadowed by the subcommand's default
	out.Reset()
	err = run([]string{"ensdir", "--profile", "prod", "resolve", "--data-dir", dataDir, "prod.eth"}, &out)
	require.NoError(err)
	assert.JSONEq(`{"address":"0x983110309620d911731ac0932219af06091b6744"}`, out.String())
}
