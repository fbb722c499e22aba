package provider

import (
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// NewProviderMap wires one adapter instance per supported provider.
// Adapters are stateless, so the map is safe to share across accounts
// and goroutines.
func NewProviderMap() map[domain.Provider]out.MailProvider {
	return map[domain.Provider]out.MailProvider{
		domain.ProviderGoogle:  NewGmailAdapter(),
		domain.ProviderOutlook: NewOutlookAdapter(),
	}
}
