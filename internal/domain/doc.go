// Package domain holds the value types shared by ingestion, analysis and
// storage: integrations, content, daily performance records, experiments,
// pattern insights and alerts.
//
// The package imports nothing from internal/. Types carry JSON and db tags
// and may have pure validation methods; they never hold connections or
// contexts.
package domain
