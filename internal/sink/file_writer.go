package sink

import (
	"encoding/json"
	"os"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// FileWriter writes the fleet's streams to JSONL files.
type FileWriter struct {
	teleFile     *os.File
	alertFile    *os.File
	dispatchFile *os.File
	stateFile    *os.File
	teleEnc      *json.Encoder
	alertEnc     *json.Encoder
	dispatchEnc  *json.Encoder
	stateEnc     *json.Encoder
}

// NewFileWriter creates a FileWriter. alertPath, dispatchPath, or
// statePath may be empty to skip those logs.
func NewFileWriter(telemetryPath, alertPath, dispatchPath, statePath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if alertPath != "" {
		af, err := os.Create(alertPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.alertFile = af
		fw.alertEnc = json.NewEncoder(af)
	}
	if dispatchPath != "" {
		df, err := os.Create(dispatchPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.dispatchFile = df
		fw.dispatchEnc = json.NewEncoder(df)
	}
	if statePath != "" {
		sf, err := os.Create(statePath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.stateFile = sf
		fw.stateEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// Write logs a single telemetry snapshot.
func (f *FileWriter) Write(row telemetry.Snapshot) error {
	return f.teleEnc.Encode(row)
}

// WriteBatch logs multiple telemetry snapshots.
func (f *FileWriter) WriteBatch(rows []telemetry.Snapshot) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert logs a single alert, if enabled.
func (f *FileWriter) WriteAlert(a rules.Alert) error {
	if f.alertEnc == nil {
		return nil
	}
	return f.alertEnc.Encode(a)
}

// WriteAlerts logs multiple alerts.
func (f *FileWriter) WriteAlerts(rows []rules.Alert) error {
	for _, a := range rows {
		if err := f.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// WriteDispatchEvent logs a single dispatch event, if enabled.
func (f *FileWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	if f.dispatchEnc == nil {
		return nil
	}
	return f.dispatchEnc.Encode(e)
}

// WriteDispatchEvents logs multiple dispatch events.
func (f *FileWriter) WriteDispatchEvents(rows []telemetry.DispatchEventRow) error {
	for _, e := range rows {
		if err := f.WriteDispatchEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteState logs a simulation state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.SimulationStateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	return f.stateEnc.Encode(row)
}

// WriteStates logs multiple simulation state rows.
func (f *FileWriter) WriteStates(rows []telemetry.SimulationStateRow) error {
	for _, r := range rows {
		if err := f.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.teleFile, f.alertFile, f.dispatchFile, f.stateFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
