package combo

import "errors"

var (
	ErrUnknownAnalysisType = errors.New("unknown analysis type")
	ErrUnknownRankingRule  = errors.New("unknown ranking rule")

	// Insufficient data is a notice, not a failure; runs report it through RunInsufficientData.
	ErrInsufficientPopulation = errors.New("insufficient data: population below minimum")
	ErrInsufficientCandidates = errors.New("insufficient data: fewer than 2 candidate entities")
)
