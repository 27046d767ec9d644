package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pnpbots/pnptv-payments/internal/pkg/cache"
)

const (
	webhookOutcomesKey   = "webhook:counters:outcomes"
	webhookRejectionsKey = "webhook:counters:rejections"
	recoveryOutcomesKey  = "recovery:counters:outcomes"
)

// AddWebhookOutcome increments the processing outcome counter for a provider
func AddWebhookOutcome(provider, outcome string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", provider, outcome)
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, field, 1).Err()
}

// AddWebhookRejection increments the rejection counter for a provider.
// Reason is the short error class, e.g. invalid_signature or invalid_payload.
func AddWebhookRejection(provider, reason string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", provider, reason)
	return cache.GetClient().HIncrBy(ctx, webhookRejectionsKey, field, 1).Err()
}

// AddRecoveryOutcome increments the recovery outcome counter for a provider
func AddRecoveryOutcome(provider, outcome string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", provider, outcome)
	return cache.GetClient().HIncrBy(ctx, recoveryOutcomesKey, field, 1).Err()
}

// Snapshot returns all counters grouped by category for the admin stats view
func Snapshot() (map[string]map[string]int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	out := make(map[string]map[string]int64, 3)
	for name, key := range map[string]string{
		"webhook_outcomes":   webhookOutcomesKey,
		"webhook_rejections": webhookRejectionsKey,
		"recovery_outcomes":  recoveryOutcomesKey,
	} {
		raw, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		group := make(map[string]int64, len(raw))
		for field, value := range raw {
			n, perr := strconv.ParseInt(value, 10, 64)
			if perr != nil {
				continue
			}
			group[field] = n
		}
		out[name] = group
	}
	return out, nil
}
