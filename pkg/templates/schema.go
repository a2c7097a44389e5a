package templates

// documentSchema is the JSON schema every template document must satisfy
// before its graph is checked.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "nodes", "edges"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9_.-]+$"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "project_id": {"type": "string"},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"enum": ["start", "agent_task", "approval_gate", "condition", "end"]},
          "name": {"type": "string"},
          "agent_task": {
            "type": "object",
            "required": ["role"],
            "properties": {
              "role": {"type": "string", "minLength": 1},
              "description": {"type": "string"},
              "board_status": {"type": "string"},
              "move_card_on": {"enum": ["start", "complete"]}
            },
            "additionalProperties": false
          },
          "approval": {
            "type": "object",
            "properties": {"description": {"type": "string"}},
            "additionalProperties": false
          },
          "condition": {
            "type": "object",
            "required": ["expression"],
            "properties": {"expression": {"type": "string", "minLength": 1}},
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "branch": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
