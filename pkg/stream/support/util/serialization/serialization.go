// Package serialization provides utilities for serializing and deserializing data structures
// used in the streaming runtime, such as ExecutionContext state and masked configuration maps.
package serialization

import (
	"encoding/json"

	config "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// GetMaskedConfigMap creates a copy of a configuration map and masks sensitive values based on configuration.
func GetMaskedConfigMap(params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return map[string]interface{}{}
	}

	// Create a masked copy
	masked := make(map[string]interface{}, len(params))
	for k, v := range params {
		masked[k] = v
	}

	for _, key := range config.GetMaskedConfigKeys() {
		if _, ok := masked[key]; ok {
			masked[key] = "********" // Masking
		}
	}
	return masked
}

// MarshalExecutionContext serializes an ExecutionContext map into a JSON byte slice.
func MarshalExecutionContext(ec map[string]interface{}) ([]byte, error) {
	module := "serialization"

	if ec == nil {
		logger.Debugf("ExecutionContext is nil. Returning empty JSON object.")
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewStreamError(module, "Failed to serialize ExecutionContext", err, false)
	}
	return data, nil
}

// UnmarshalExecutionContext deserializes a JSON byte slice into an ExecutionContext map.
func UnmarshalExecutionContext(data []byte, ec *map[string]interface{}) error {
	module := "serialization"

	if *ec == nil {
		*ec = make(map[string]interface{})
	} else {
		// Clear existing map
		for k := range *ec {
			delete(*ec, k)
		}
	}

	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		logger.Debugf("ExecutionContext is nil or empty data. Created/cleared empty ExecutionContext.")
		return nil
	}

	if err := json.Unmarshal(data, ec); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return exception.NewStreamError(module, "Failed to deserialize ExecutionContext", err, false)
	}
	return nil
}
