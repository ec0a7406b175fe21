package fanout

import (
	"errors"
	"strings"
)

// Telegram reports revoked consent only through the error description text,
// so classification is substring matching against known signatures.
var (
	// unreachableSignatures mark chats that revoked delivery consent.
	unreachableSignatures = []string{
		"bot was blocked by the user",
	}
	// droppedSignatures are expected account churn; high-frequency and benign,
	// so they are neither logged nor reported for removal.
	droppedSignatures = []string{
		"user is deactivated",
	}
)

// expiredPushStatuses are the push-service responses for a subscription that
// no longer exists (unsubscribed or expired endpoint).
var expiredPushStatuses = map[int]bool{
	404: true,
	410: true,
}

// ClassifyTelegram maps a bot-send failure to its outcome class by the
// provider's error description.
func ClassifyTelegram(err error) Class {
	detail := errDetail(err)
	for _, sig := range droppedSignatures {
		if strings.Contains(detail, sig) {
			return ClassDropped
		}
	}
	for _, sig := range unreachableSignatures {
		if strings.Contains(detail, sig) {
			return ClassUnreachable
		}
	}
	return ClassTransient
}

// ClassifyPush maps a push failure to its outcome class by response status:
// a 404/410 endpoint is gone for good, everything else is transient.
func ClassifyPush(err error) Class {
	var de *DeliveryError
	if errors.As(err, &de) && expiredPushStatuses[de.StatusCode] {
		return ClassUnreachable
	}
	return ClassTransient
}

func errDetail(err error) string {
	var de *DeliveryError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
