package verification

import (
	"strings"

	"maidlink/internal/models"
)

// Normalize maps a provider-native status into our status and verdict.
// Hyphens and underscores are interchangeable. Unknown values are treated as still in progress.
func Normalize(providerStatus string) (models.VerificationStatus, models.Verdict) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(providerStatus)), "-", "_") {
	case "pending", "in_progress":
		return models.VerificationInProgress, ""
	case "clear", "pass":
		return models.VerificationCompleted, models.VerdictClear
	case "consider", "records_found":
		return models.VerificationCompleted, models.VerdictConsider
	case "suspended", "error":
		return models.VerificationFailed, ""
	default:
		return models.VerificationInProgress, ""
	}
}

func result(checkID, providerStatus string, results map[string]any) *models.CheckResult {
	status, verdict := Normalize(providerStatus)
	return &models.CheckResult{
		CheckID:        checkID,
		ProviderStatus: providerStatus,
		Status:         status,
		Verdict:        verdict,
		Results:        results,
	}
}
