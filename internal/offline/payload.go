package offline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/store"
)

// payloadSchemas describe the JSON payload of each record kind. A record
// whose payload does not conform can never be applied.
var payloadSchemas = map[store.RecordKind]string{
	store.KindScheduleUpdate: `{
		"type": "object",
		"required": ["record_id", "state", "base_reviewed_at"],
		"properties": {
			"record_id": {"type": "string", "minLength": 1},
			"base_reviewed_at": {"type": "string"},
			"state": {
				"type": "object",
				"required": ["user_id", "item_id", "state", "ease", "interval_days", "next_due", "last_reviewed_at", "total_reviews"],
				"properties": {
					"user_id": {"type": "string", "minLength": 1},
					"item_id": {"type": "string", "minLength": 1},
					"state": {"enum": ["new", "learning", "review", "mastered"]},
					"ease": {"type": "number", "minimum": 0},
					"interval_days": {"type": "number", "minimum": 0},
					"consecutive_correct": {"type": "integer", "minimum": 0},
					"total_reviews": {"type": "integer", "minimum": 0},
					"lapses": {"type": "integer", "minimum": 0},
					"success_rate": {"type": "number", "minimum": 0, "maximum": 1},
					"leech": {"type": "boolean"}
				}
			}
		}
	}`,
	store.KindAnswer: `{
		"type": "object",
		"required": ["record_id", "id", "session_id", "user_id", "item_id", "correct", "score", "at"],
		"properties": {
			"record_id": {"type": "string", "minLength": 1},
			"id": {"type": "string", "minLength": 1},
			"session_id": {"type": "string", "minLength": 1},
			"user_id": {"type": "string", "minLength": 1},
			"item_id": {"type": "string", "minLength": 1},
			"correct": {"type": "boolean"},
			"score": {"type": "integer", "minimum": 0, "maximum": 100},
			"attempt": {"type": "integer", "minimum": 1},
			"hints_used": {"type": "integer", "minimum": 0}
		}
	}`,
	store.KindSessionSnapshot: `{
		"type": "object",
		"required": ["record_id", "session_id", "user_id", "status", "updated_at", "stats"],
		"properties": {
			"record_id": {"type": "string", "minLength": 1},
			"session_id": {"type": "string", "minLength": 1},
			"user_id": {"type": "string", "minLength": 1},
			"status": {"enum": ["active", "paused", "completed", "abandoned"]},
			"stats": {
				"type": "object",
				"properties": {
					"answered": {"type": "integer", "minimum": 0},
					"correct": {"type": "integer", "minimum": 0},
					"completed": {"type": "integer", "minimum": 0},
					"hints_used": {"type": "integer", "minimum": 0},
					"best_streak": {"type": "integer", "minimum": 0}
				}
			}
		}
	}`,
}

// validator checks payloads against the compiled schemas.
type validator struct {
	schemas map[store.RecordKind]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()
	v := &validator{schemas: make(map[store.RecordKind]*jsonschema.Schema, len(payloadSchemas))}
	for kind, def := range payloadSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(def))
		if err != nil {
			return nil, fmt.Errorf("parse %s schema: %w", kind, err)
		}
		url := fmt.Sprintf("schema://%s.json", kind)
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", kind, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		v.schemas[kind] = sch
	}
	return v, nil
}

// check validates raw against the schema of kind.
func (v *validator) check(kind store.RecordKind, raw []byte) error {
	sch, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("%w: unknown record kind %q", ErrInvalidPayload, kind)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// encode marshals and validates a payload.
func (v *validator) encode(kind store.RecordKind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := v.check(kind, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// decoded is a record payload ready to send. Exactly one field is set.
type decoded struct {
	schedule *remote.ScheduleUpdate
	answer   *remote.Answer
	session  *remote.SessionSnapshot
}

// decode validates and unmarshals the payload of rec.
func (v *validator) decode(rec store.SyncRecord) (decoded, error) {
	if err := v.check(rec.Kind, rec.Payload); err != nil {
		return decoded{}, err
	}
	var d decoded
	var err error
	switch rec.Kind {
	case store.KindScheduleUpdate:
		d.schedule = &remote.ScheduleUpdate{}
		err = json.Unmarshal(rec.Payload, d.schedule)
	case store.KindAnswer:
		d.answer = &remote.Answer{}
		err = json.Unmarshal(rec.Payload, d.answer)
	case store.KindSessionSnapshot:
		d.session = &remote.SessionSnapshot{}
		err = json.Unmarshal(rec.Payload, d.session)
	}
	if err != nil {
		return decoded{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return d, nil
}
