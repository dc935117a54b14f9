package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Run attributes
	AttrRunID       = "skillwave.run.id"
	AttrRunUnits    = "skillwave.run.units"
	AttrRunWaves    = "skillwave.run.waves"
	AttrRunExecuted = "skillwave.run.executed"
	AttrRunSkipped  = "skillwave.run.skipped"
	AttrRunFailed   = "skillwave.run.failed"

	// Wave attributes
	AttrWaveIndex = "skillwave.wave.index"
	AttrWaveUnits = "skillwave.wave.units"

	// Unit attributes
	AttrUnitID      = "skillwave.unit.id"
	AttrUnitHash    = "skillwave.unit.hash"
	AttrUnitOutcome = "skillwave.unit.outcome"
	AttrUnitFailure = "skillwave.unit.failure"

	// Planner decision attributes
	AttrDecisionAction = "skillwave.decision.action"
	AttrDecisionReason = "skillwave.decision.reason"
)

func RunAttributes(runID string, units, waves int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrRunUnits, units),
		attribute.Int(AttrRunWaves, waves),
	}
}

func RunOutcomeAttributes(executed, skipped, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRunExecuted, executed),
		attribute.Int(AttrRunSkipped, skipped),
		attribute.Int(AttrRunFailed, failed),
	}
}

func WaveAttributes(index, units int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrWaveIndex, index),
		attribute.Int(AttrWaveUnits, units),
	}
}

// UnitAttributes returns attributes for a unit span. The hash is shortened
// to keep span payloads small; it is omitted when empty.
func UnitAttributes(unitID, hash string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrUnitID, unitID),
	}
	if hash != "" {
		if len(hash) > 12 {
			hash = hash[:12]
		}
		attrs = append(attrs, attribute.String(AttrUnitHash, hash))
	}
	return attrs
}

// OutcomeAttributes labels the unit outcome counter. failure is omitted
// for non-failed outcomes.
func OutcomeAttributes(outcome, failure string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrUnitOutcome, outcome),
	}
	if failure != "" {
		attrs = append(attrs, attribute.String(AttrUnitFailure, failure))
	}
	return attrs
}

func DecisionAttributes(action, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDecisionAction, action),
		attribute.String(AttrDecisionReason, reason),
	}
}
