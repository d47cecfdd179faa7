// Package batch loads input batches and validation rules from files. It is a
// thin adapter for the CLI; parsing spreadsheets or feeds into records is the
// submitting system's job.
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// LoadRecords reads a batch from a JSON file: either an array of field maps
// or one JSON object per line. Row indexes are assigned in file order.
func LoadRecords(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, eris.Errorf("batch: %s is empty", path)
	}

	var maps []map[string]any
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &maps); err != nil {
			return nil, eris.Wrapf(err, "batch: parse %s", path)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			var fields map[string]any
			if err := json.Unmarshal(text, &fields); err != nil {
				return nil, eris.Wrapf(err, "batch: parse %s line %d", path, line)
			}
			maps = append(maps, fields)
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrapf(err, "batch: scan %s", path)
		}
	}

	records := make([]model.Record, len(maps))
	for i, fields := range maps {
		records[i] = model.Record{RowIndex: i, Fields: fields}
	}
	return records, nil
}

// LoadRules reads a ValidationRules document from a YAML or JSON file.
func LoadRules(path string) (model.ValidationRules, error) {
	var rules model.ValidationRules

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "batch: read %s", path)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, eris.Wrapf(err, "batch: parse rules %s", path)
	}
	return rules, nil
}
