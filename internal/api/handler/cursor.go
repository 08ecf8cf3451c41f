package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/storage"
	"github.com/google/uuid"
)

// DecodeEscrowCursor parses the opaque next_cursor value of ListEscrows
func DecodeEscrowCursor(cursorStr string) (*storage.EscrowCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	if _, err := uuid.Parse(decodedParts[1]); err != nil {
		return nil, fmt.Errorf("invalid escrow id in cursor: %w", err)
	}

	return &storage.EscrowCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		EscrowID:  decodedParts[1],
	}, nil
}

func EncodeEscrowCursor(cursor *storage.EscrowCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.EscrowID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
