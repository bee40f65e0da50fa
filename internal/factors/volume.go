package factors

import "github.com/wonny/tradeloop/internal/contracts"

// VolumeDelivery derives the volume/delivery factor from the technical
// volume signal
func VolumeDelivery(sig VolumeSignal) contracts.FactorScore {
	v := Neutral
	switch sig.Signal {
	case VolumeStrongAccumulation:
		v = 80
	case VolumeAccumulation:
		v = 65
	case VolumeStrongDistribution:
		v = 20
	case VolumeDistribution:
		v = 35
	}

	fs := score(contracts.FactorVolumeDelivery, v)
	fs.Detail = map[string]interface{}{
		"volume_signal": sig.Signal,
		"volume_ratio":  sig.Ratio,
		"volume_trend":  sig.Trend,
	}
	return fs
}
