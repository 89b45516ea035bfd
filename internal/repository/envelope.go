package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/set-night/companionbot/internal/domain"
)

// SchemaVersion is written into every stored envelope.
const SchemaVersion = 2

type envelope struct {
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// migration upgrades a payload from version v to v+1.
type migration func(payload json.RawMessage) (json.RawMessage, error)

// migrations holds, per key, the step that upgrades from the indexed version.
// A missing step means the payload shape did not change for that key.
var migrations = map[string]map[int]migration{
	KeyConversations: {
		0: migrateConversationsV0,
	},
	KeyCustomPersonalities: {
		0: migratePersonalitiesV0,
		1: migratePersonalitiesV1,
	},
	KeyPreferences: {
		0: migratePreferencesV0,
	},
}

func encodeEnvelope(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{Version: SchemaVersion, Payload: raw})
}

// decodeEnvelope returns the payload of a stored blob upgraded to SchemaVersion.
// Blobs written before versioning existed are treated as version 0.
func decodeEnvelope(key string, raw []byte) (json.RawMessage, error) {
	version, payload := splitEnvelope(raw)
	if version > SchemaVersion {
		return nil, fmt.Errorf("%w: %s has version %d", domain.ErrUnknownSchema, key, version)
	}

	for v := version; v < SchemaVersion; v++ {
		step, ok := migrations[key][v]
		if !ok {
			continue
		}
		next, err := step(payload)
		if err != nil {
			return nil, fmt.Errorf("migrate %s from v%d: %w", key, v, err)
		}
		payload = next
	}
	return payload, nil
}

func splitEnvelope(raw []byte) (int, json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return 0, raw
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) != 2 {
		return 0, raw
	}
	versionRaw, hasVersion := fields["version"]
	payload, hasPayload := fields["payload"]
	if !hasVersion || !hasPayload {
		return 0, raw
	}
	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return 0, raw
	}
	return version, payload
}

// migrateConversationsV0 drops entries without a chat role and fills missing
// timestamps from the neighbouring messages.
func migrateConversationsV0(payload json.RawMessage) (json.RawMessage, error) {
	var legacy map[string][]domain.Message
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return nil, err
	}

	for id, msgs := range legacy {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
				kept = append(kept, m)
			}
		}
		fillTimestamps(kept)
		legacy[id] = kept
	}
	return json.Marshal(legacy)
}

func fillTimestamps(msgs []domain.Message) {
	var last time.Time
	for i := range msgs {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = last
		}
		last = msgs[i].Timestamp
	}
	// leading gaps take the first known timestamp
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = last
		}
		last = msgs[i].Timestamp
	}
}

func migratePersonalitiesV0(payload json.RawMessage) (json.RawMessage, error) {
	var legacy []map[string]any
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return nil, err
	}
	for _, p := range legacy {
		if e, _ := p["emoji"].(string); e == "" {
			p["emoji"] = domain.DefaultEmoji
		}
	}
	return json.Marshal(legacy)
}

// migratePersonalitiesV1 replaces the isPublic flag with a visibility value.
func migratePersonalitiesV1(payload json.RawMessage) (json.RawMessage, error) {
	var legacy []map[string]any
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return nil, err
	}
	for _, p := range legacy {
		public, _ := p["isPublic"].(bool)
		delete(p, "isPublic")
		if _, ok := p["visibility"]; ok {
			continue
		}
		if public {
			p["visibility"] = string(domain.VisibilityPublic)
		} else {
			p["visibility"] = string(domain.VisibilityPrivate)
		}
	}
	return json.Marshal(legacy)
}

// migratePreferencesV0 upgrades the bare notifications flag ("true"/"false").
func migratePreferencesV0(payload json.RawMessage) (json.RawMessage, error) {
	var flag any
	if err := json.Unmarshal(payload, &flag); err != nil {
		return nil, err
	}

	var enabled bool
	switch v := flag.(type) {
	case bool:
		enabled = v
	case string:
		enabled = v == "true"
	default:
		// already an object
		return payload, nil
	}

	prefs := domain.Preferences{
		Notifications:    domain.NotificationPreference{Enabled: enabled, Permission: domain.PermissionUnset},
		ProactiveEnabled: true,
	}
	return json.Marshal(prefs)
}
