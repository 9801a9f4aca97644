package internal

import (
	"context"
	"encoding/json"
	"log"
)

// logActivity records an audit trail row. Audit failures are logged and
// swallowed; they never fail the request that triggered them.
func (s *Server) logActivity(ctx context.Context, adminID int64, action, entityType string, entityID int64, details map[string]any) {
	var payload []byte
	if details != nil {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			log.Printf("audit: failed to marshal details for %s: %v", action, err)
			payload = nil
		}
	}

	var adminRef any
	if adminID > 0 {
		adminRef = adminID
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO activity_log (admin_id, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5)`,
		adminRef, action, entityType, entityID, payload)
	if err != nil {
		log.Printf("audit: failed to record %s on %s/%d: %v", action, entityType, entityID, err)
	}
}
