// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// Authentication bounds one account-linking flow, from URL issuance to
// token delivery.
const Authentication = 5 * time.Minute

// Selection bounds how long a member has to answer one chat prompt.
const Selection = 60 * time.Second

// ProviderRequest caps one outbound call to the identity provider.
const ProviderRequest = 10 * time.Second

// PendingCleanup is the default interval between sweeps of expired flows.
const PendingCleanup = time.Minute

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
