// Package triage is the business boundary for CityCare's report triage. The
// Service scores report urgency, suggests authoring metadata, and drafts
// remediation plans by way of a model provider, with caching, single-flight
// coalescing, and an append-only audit trail around every model call.
package triage
