package channel

import "math"

// PowerCaptureThresholdDb is the power-capture margin of spec.md §4.5: two
// overlapping packets whose RSSI differs by no more than this many dB both
// become casualties; above it, only the weaker one does.
const PowerCaptureThresholdDb = 6.0

// preambleSymbols is Npream in spec.md §4.5's timing test.
const preambleSymbols = 8

// InFlight describes one already-registered packet at a receiver, for the
// purpose of testing a newly arriving packet against it. Col is a pointer
// into the receiver's rxBuffer entry so the detector can flag an existing
// casualty in place, matching spec.md §4.5 ("casualty later found out").
type InFlight struct {
	SF         int
	BW         float64
	Freq       float64
	AppearTime uint64
	Airtime    float64
	RSSI       float64
	Col        *bool
}

// freqThreshold returns the frequency-separation tolerance (kHz) for a pair
// of transmissions, keyed by whichever of the two bandwidths is narrowest
// (spec.md §4.5: "30 kHz when either has bw=125; 60 for bw=250; 120 for
// bw=500").
func freqThreshold(bw1, bw2 float64) float64 {
	if bw1 == 125 || bw2 == 125 {
		return 30
	}
	if bw1 == 250 || bw2 == 250 {
		return 60
	}
	return 120
}

// timingSymbolPeriod returns (2^sf / bw) in ms, the LoRa symbol period.
func timingSymbolPeriod(sf int, bw float64) float64 {
	return math.Pow(2, float64(sf)) / bw
}

// Detector implements the four-way collision test of spec.md §4.5.
type Detector struct{}

// NewDetector creates a stateless collision detector.
func NewDetector() *Detector { return &Detector{} }

// Check tests a newly arriving packet (sf, bw, freq, rssi, now) against every
// other packet already in flight at the same receiver. It sets the Col flag
// of any existing in-flight packet found to be a casualty, and returns
// whether the new packet is itself a casualty.
func (d *Detector) Check(sf int, bw, freq, rssi float64, now uint64, others []InFlight) bool {
	newCasualty := false

	for i := range others {
		o := &others[i]

		// 1. Frequency
		if math.Abs(freq-o.Freq) > freqThreshold(bw, o.BW) {
			continue
		}

		// 2. Spreading factor
		if sf != o.SF {
			continue
		}

		// 3. Timing, with preamble capture
		tpreamb := timingSymbolPeriod(sf, bw) * float64(preambleSymbols-5)
		criticalStart := float64(now) + tpreamb
		otherEnd := float64(o.AppearTime) + o.Airtime
		if criticalStart >= otherEnd {
			// new packet's critical section starts at or after the other's end: survives.
			continue
		}

		// 4. Power capture
		diff := math.Abs(rssi - o.RSSI)
		switch {
		case diff <= PowerCaptureThresholdDb:
			newCasualty = true
			*o.Col = true
		case rssi < o.RSSI:
			newCasualty = true
		default:
			*o.Col = true
		}
	}

	return newCasualty
}
