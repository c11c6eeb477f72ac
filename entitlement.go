package botledger

import "context"

// ApplyTier moves the user to tier and replaces their quotas with a fresh
// copy of the tier's table. Conversation history is kept.
func (l *Ledger) ApplyTier(ctx context.Context, userID, tier string) error {
	if err := checkUser("apply_tier", userID); err != nil {
		return err
	}
	def, err := l.tiers.Lookup(tier)
	if err != nil {
		return wrapErr("apply_tier", userID, "", err)
	}

	err = l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		acc, _, err := l.loadOrSeed(tx, userID)
		if err != nil {
			return err
		}
		grant(&acc, tier, def)
		return tx.PutAccount(userID, acc)
	})
	return wrapErr("apply_tier", userID, "", err)
}

// DescribeTier returns display metadata for a tier.
func (l *Ledger) DescribeTier(tier string) (TierInfo, error) {
	return l.tiers.Info(tier)
}

// TierNames lists the configured tiers in display order.
func (l *Ledger) TierNames() []string {
	return l.tiers.Names()
}

func grant(acc *Account, tier string, def TierDefinition) {
	acc.Tier = tier
	acc.Limits = copyLimits(def.Limits)
}
