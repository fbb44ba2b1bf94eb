package deadletter

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor is the keyset position of the last entry of a page
type Cursor struct {
	FailedAt time.Time
	ID       int64
}

func DecodeCursor(cursorStr string) (*Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var failedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &failedAt); err != nil {
		return nil, fmt.Errorf("invalid failedAt in cursor: %w", err)
	}

	var id int64
	if _, err := fmt.Sscanf(parts[1], "%d", &id); err != nil {
		return nil, fmt.Errorf("invalid id in cursor: %w", err)
	}

	return &Cursor{
		FailedAt: time.Unix(0, failedAt).UTC(),
		ID:       id,
	}, nil
}

func EncodeCursor(cursor *Cursor) string {
	cs := fmt.Sprintf("%d|%d", cursor.FailedAt.UnixNano(), cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
