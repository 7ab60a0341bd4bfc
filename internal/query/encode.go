package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// EncodableRows returns a copy of rows in which every value survives
// encoding/json. Non-finite floats become their strconv text and values JSON
// cannot encode, such as DuckDB MAP columns, fall back to fmt.Sprint.
func EncodableRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		encoded := make([]any, len(row))
		for j, value := range row {
			encoded[j] = encodableValue(value)
		}
		out[i] = encoded
	}
	return out
}

func encodableValue(value any) any {
	switch typed := value.(type) {
	case nil, bool, string, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return typed
	case float64:
		return finiteOrText(typed, 64)
	case float32:
		return finiteOrText(float64(typed), 32)
	}
	if _, err := json.Marshal(value); err != nil {
		return fmt.Sprint(value)
	}
	return value
}

func finiteOrText(value float64, bitSize int) any {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return strconv.FormatFloat(value, 'g', -1, bitSize)
	}
	return value
}
