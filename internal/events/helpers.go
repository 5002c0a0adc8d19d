package events

import (
	"encoding/json"
	"fmt"
)

// SetReportData sets the Data field with ReportData in a type-safe way.
func (m *Message) SetReportData(data ReportData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReportData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetReportData retrieves ReportData from the Data field.
func (m *Message) GetReportData() (*ReportData, error) {
	var data ReportData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReportData: %w", err)
	}
	return &data, nil
}

// SetTransitionData sets the Data field with TransitionData in a type-safe way.
func (m *Message) SetTransitionData(data TransitionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TransitionData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetTransitionData retrieves TransitionData from the Data field.
func (m *Message) GetTransitionData() (*TransitionData, error) {
	var data TransitionData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TransitionData: %w", err)
	}
	return &data, nil
}

// SetAnalyzedData sets the Data field with AnalyzedData in a type-safe way.
func (m *Message) SetAnalyzedData(data AnalyzedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AnalyzedData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetAnalyzedData retrieves AnalyzedData from the Data field.
func (m *Message) GetAnalyzedData() (*AnalyzedData, error) {
	var data AnalyzedData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AnalyzedData: %w", err)
	}
	return &data, nil
}

// SetLearningIngestedData sets the Data field with LearningIngestedData in a type-safe way.
func (m *Message) SetLearningIngestedData(data LearningIngestedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert LearningIngestedData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetLearningIngestedData retrieves LearningIngestedData from the Data field.
func (m *Message) GetLearningIngestedData() (*LearningIngestedData, error) {
	var data LearningIngestedData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse LearningIngestedData: %w", err)
	}
	return &data, nil
}

// SetGateBlockedData sets the Data field with GateBlockedData in a type-safe way.
func (m *Message) SetGateBlockedData(data GateBlockedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert GateBlockedData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetGateBlockedData retrieves GateBlockedData from the Data field.
func (m *Message) GetGateBlockedData() (*GateBlockedData, error) {
	var data GateBlockedData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse GateBlockedData: %w", err)
	}
	return &data, nil
}

// SetEventCleanupCompletedData sets the Data field with EventCleanupCompletedData in a type-safe way.
func (m *Message) SetEventCleanupCompletedData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData: %w", err)
	}
	m.Data = dataMap
	return nil
}

// GetEventCleanupCompletedData retrieves EventCleanupCompletedData from the Data field.
func (m *Message) GetEventCleanupCompletedData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(m.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
