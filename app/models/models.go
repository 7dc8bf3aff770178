package models

// All lists every persisted model, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&ProviderAccount{},
		&Call{},
		&Notification{},
		&MonthlyReport{},
		&MarketingContact{},
		&MarketingSegment{},
		&MarketingCampaign{},
		&MarketingSend{},
		&ReviewConfig{},
		&ReviewIncentive{},
		&ReviewRequest{},
		&ReviewSource{},
		&Review{},
		&ReviewAlert{},
		&ReviewSyncLog{},
		&GuaranteeSession{},
		&NoshowCharge{},
		&BillingWebhookEvent{},
	}
}
