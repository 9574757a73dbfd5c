package event

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// QueryFilter compiles a jq expression evaluated against each event's JSON.
// An event passes when the first result is truthy in the jq sense (neither
// false nor null). Evaluation errors reject the event.
//
//	.type == "statement_added" and .payload.statement.participant_id == "ethicist"
func QueryFilter(expr string) (Filter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("jq: filter parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq: compile error: %w", err)
	}
	return func(e Envelope) bool {
		var doc any
		if err := json.Unmarshal(e.Data, &doc); err != nil {
			return false
		}
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		return v != nil && v != false
	}, nil
}
