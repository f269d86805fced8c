package events

import "github.com/google/uuid"

func CreatedPayload(projectID uuid.UUID, sessionID string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": projectID.String(),
		"status":     "pending_payment",
		"session_id": sessionID,
	}
}

func PaidPayload(projectID uuid.UUID, transactionID string) map[string]interface{} {
	return map[string]interface{}{
		"project_id":     projectID.String(),
		"status":         "pending",
		"payment_status": "paid",
		"transaction_id": transactionID,
	}
}

func CompletedPayload(projectID uuid.UUID, outputRef string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": projectID.String(),
		"status":     "completed",
		"output_ref": outputRef,
	}
}

func GenerationFailedPayload(projectID uuid.UUID, stage, errorMsg string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": projectID.String(),
		"status":     "failed",
		"stage":      stage,
		"error":      errorMsg,
	}
}
