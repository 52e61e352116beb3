// Package services implements the driving port interfaces.
// Services contain the core business logic (ingestion, index builds,
// retrieval and evidence proposal) and orchestrate calls to driven ports
// (adapters).
//
// Services have no CGO dependencies.
package services
