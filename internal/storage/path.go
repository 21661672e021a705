package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const TrainingUnitPrefix = "units"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTrainingUnitPath returns the object key holding the JSON document of one training unit.
func BuildTrainingUnitPath(unitID string) (string, error) {
	if err := validatePathComponent(unitID, "training unit id"); err != nil {
		return "", err
	}
	return path.Join(TrainingUnitPrefix, unitID+".json"), nil
}

// TrainingUnitIDFromPath reverses BuildTrainingUnitPath. ok is false for keys that do not
// belong to a training unit.
func TrainingUnitIDFromPath(key string) (string, bool) {
	dir, file := path.Split(strings.TrimPrefix(key, "/"))
	if path.Clean(dir) != TrainingUnitPrefix || !strings.HasSuffix(file, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(file, ".json")
	if validatePathComponent(id, "training unit id") != nil {
		return "", false
	}
	return id, true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
