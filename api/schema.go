package api

// configurationSchema constrains the shape of a Configure request body.
// Value checks that depend on hardware capabilities happen in the nodes.
const configurationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Configuration",
  "type": "object",
  "required": ["nodes"],
  "additionalProperties": false,
  "properties": {
    "nodes": {
      "type": "array",
      "items": {"$ref": "#/definitions/node"}
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["src", "dst"],
        "additionalProperties": false,
        "properties": {
          "src": {"type": "integer", "minimum": 0},
          "dst": {"type": "integer", "minimum": 0}
        }
      }
    }
  },
  "definitions": {
    "port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "stream_in": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "multicast_group": {"type": "string"},
        "transport": {"enum": ["udp", "pubsub"]},
        "port": {"$ref": "#/definitions/port"},
        "decode": {"type": "boolean"},
        "bit_width": {"type": "integer", "minimum": 0}
      }
    },
    "stream_out": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "multicast_group": {"type": "string"},
        "transport": {"enum": ["udp", "pubsub"]},
        "port": {"$ref": "#/definitions/port"},
        "queue_size": {"type": "integer", "minimum": 0}
      }
    },
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "additionalProperties": false,
      "properties": {
        "id": {"type": "integer", "minimum": 0},
        "type": {"enum": ["stream_in", "stream_out", "electrical_broadband", "optical_stimulation"]},
        "stream_in": {"$ref": "#/definitions/stream_in"},
        "stream_out": {"$ref": "#/definitions/stream_out"},
        "electrical_broadband": {
          "type": "object",
          "required": ["sample_rate", "bit_width", "channels"],
          "additionalProperties": false,
          "properties": {
            "peripheral_id": {"type": "integer", "minimum": 0},
            "sample_rate": {"type": "integer", "minimum": 1},
            "bit_width": {"type": "integer", "minimum": 1},
            "gain": {"type": "number"},
            "channels": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["id"],
                "additionalProperties": false,
                "properties": {
                  "id": {"type": "integer", "minimum": 0},
                  "electrode_id": {"type": "integer", "minimum": 0},
                  "reference_id": {"type": "integer", "minimum": 0}
                }
              }
            }
          }
        },
        "optical_stimulation": {
          "type": "object",
          "required": ["frame_rate", "bit_width"],
          "additionalProperties": false,
          "properties": {
            "peripheral_id": {"type": "integer", "minimum": 0},
            "frame_rate": {"type": "integer", "minimum": 1},
            "bit_width": {"type": "integer", "minimum": 1},
            "queue_size": {"type": "integer", "minimum": 0}
          }
        }
      }
    }
  }
}`
