package storage

import (
	"encoding/json"
	"errors"

	"hardspheres/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeMeasurements(measurements []model.MeasurementRecord) ([]byte, error) {
	return json.Marshal(measurements)
}

func DecodeMeasurements(data []byte) ([]model.MeasurementRecord, error) {
	var measurements []model.MeasurementRecord
	if err := json.Unmarshal(data, &measurements); err != nil {
		return nil, err
	}
	return measurements, nil
}

func EncodeDensityOfStates(d model.DensityOfStatesRecord) ([]byte, error) {
	return json.Marshal(d)
}

func DecodeDensityOfStates(data []byte) (model.DensityOfStatesRecord, error) {
	var record model.DensityOfStatesRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.DensityOfStatesRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.DensityOfStatesRecord{}, err
	}
	return record, nil
}

func EncodeSnapshot(s model.SnapshotRecord) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.SnapshotRecord, error) {
	var snapshot model.SnapshotRecord
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.SnapshotRecord{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.SnapshotRecord{}, err
	}
	return snapshot, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
