package config

import (
	"path/filepath"

	"github.com/Irkaa10/ensdir/models"
)

const (
	DevProfile     = "dev"
	DefaultDataDir = "./data"

	mockDataset = "ensToAddMock.json"
	prodDataset = "ensToAdd.json"
)

// DatasetPath returns the dataset file for a deployment profile. Only an
// exact "dev" selects the mock dataset; every other value, including the
// empty string, selects production.
func DatasetPath(dataDir, profile string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if profile == DevProfile {
		return filepath.Join(dataDir, mockDataset)
	}
	return filepath.Join(dataDir, prodDataset)
}

func LoadConfig(profile, dataDir, bind, metricsListen string) models.Config {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return models.Config{
		Profile:       profile,
		DataDir:       dataDir,
		Bind:          bind,
		MetricsListen: metricsListen,
	}
}
