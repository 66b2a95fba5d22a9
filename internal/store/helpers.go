package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// marshalSession encodes a session for storage in a JSON column or Redis value.
func marshalSession(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session %s failed: %w", session.ID, err)
	}
	return data, nil
}

// unmarshalSession decodes a stored session. A nil slot map is replaced with an empty one.
func unmarshalSession(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	if session.Collected == nil {
		session.Collected = models.Slots{}
	}
	return &session, nil
}
