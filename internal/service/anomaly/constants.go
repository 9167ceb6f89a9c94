package anomaly

// Fixed policy scores for detector findings. Thresholds that operators tune
// live in Config; these describe how severe each finding class is.
const (
	// AmountBaseConfidence applies right at the z-score threshold and
	// grows with distance past it, capped at AmountMaxConfidence
	AmountBaseConfidence  = 0.70
	AmountMaxConfidence   = 0.95
	AmountConfidenceSlope = 0.05

	TemporalScore      = 0.7
	TemporalConfidence = 0.8

	MerchantScore           = 0.8
	MerchantConfidence      = 0.9
	MerchantFuzzyConfidence = 0.8

	LocationScore      = 0.7
	LocationConfidence = 0.8
)
