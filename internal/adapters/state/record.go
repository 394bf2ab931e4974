package state

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// validRunID rejects ids that cannot be used as a file name.
func validRunID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

func validateRecord(record *core.RunRecord) error {
	if record == nil {
		return core.ErrValidation("INVALID_RUN", "nil run record")
	}
	if !validRunID(record.RunID) {
		return core.ErrValidation("INVALID_RUN", fmt.Sprintf("invalid run id %q", record.RunID))
	}
	return nil
}

func decodeRecord(payload []byte) (*core.RunRecord, error) {
	var rec core.RunRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decoding run payload: %w", err)
	}
	return &rec, nil
}
