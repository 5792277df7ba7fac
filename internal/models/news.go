package models

import "time"

// NewsEvent is an immutable news record produced by the ingestion pipeline.
// The engine only reads these; the news store is the durable source of truth.
type NewsEvent struct {
	ID           int64
	Symbol       string
	Title        string
	BullishScore float64
	ImpactScore  float64
	ObservedAt   time.Time
}

// Qualifies reports whether the event clears either score threshold.
// The check is an OR: a single strong axis is enough to act on.
func (n NewsEvent) Qualifies(bullishThreshold, impactThreshold float64) bool {
	return n.BullishScore >= bullishThreshold || n.ImpactScore >= impactThreshold
}

// DetectedNews is a qualifying news event enriched with a quote snapshot,
// kept by the engine for UI polling.
type DetectedNews struct {
	Event         NewsEvent
	Price         float64
	ChangePercent float64
	TrendPercent  float64
	Action        string // "bought", "queued", "skipped"
	DetectedAt    time.Time
}
