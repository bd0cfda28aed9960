package pipeline

// Stage is a chunk's position in the generation pipeline. A chunk moves
// forward one stage at a time and ends in Delivered or Failed.
type Stage uint8

const (
	StageRequested Stage = iota
	StageSamplingBaseNoise
	StageResolvingBiomes
	StagePlacingStructures
	StageFinalizing
	StageDelivered
	StageFailed
)

var stageNames = [...]string{
	StageRequested:         "requested",
	StageSamplingBaseNoise: "sampling_base_noise",
	StageResolvingBiomes:   "resolving_biomes",
	StagePlacingStructures: "placing_structures",
	StageFinalizing:        "finalizing",
	StageDelivered:         "delivered",
	StageFailed:            "failed",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
