package bridge

// NSecPerSec is the number of nanoseconds in a second.
const NSecPerSec int64 = 1_000_000_000

// FramesToNanos converts a frame count to nanoseconds at sampleRate using
// integer math: nanos = frames * 10^9 / sample_rate.
func FramesToNanos(frames uint32, sampleRate uint32) int64 {
	if sampleRate == 0 {
		return 0
	}
	return int64(frames) * NSecPerSec / int64(sampleRate)
}

// NanosToFrames converts nanoseconds to a frame count at sampleRate:
// frames = sample_rate * nanos / 10^9.
func NanosToFrames(nanos int64, sampleRate uint32) uint32 {
	if sampleRate == 0 {
		return 0
	}
	return uint32(int64(sampleRate) * nanos / NSecPerSec)
}

// IntraCycleOffset computes the offset, in frames, at which an event whose
// absolute arrival frame is frameTime should be emitted within a cycle that
// began at cycleStart and spans periodSize frames. The result is clamped to
// [0, periodSize-1].
func IntraCycleOffset(frameTime, cycleStart, periodSize uint32) uint32 {
	lag := cycleStart - frameTime
	if lag > periodSize {
		lag = periodSize
	}
	offset := periodSize - lag
	if offset >= periodSize && periodSize > 0 {
		offset = periodSize - 1
	}
	return offset
}
