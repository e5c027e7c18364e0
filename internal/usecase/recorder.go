package usecase

// Recorder receives outcome counters from the use cases. The Prometheus
// implementation lives in adapter/observability.
type Recorder interface {
	ProviderFallback(provider, reason string)
	QuestionSet(provenance string)
	Scored(source string, overall float64)
	Repaired(kind string, n int)
	LockConflict(scope string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ProviderFallback(string, string) {}
func (NopRecorder) QuestionSet(string)              {}
func (NopRecorder) Scored(string, float64)          {}
func (NopRecorder) Repaired(string, int)            {}
func (NopRecorder) LockConflict(string)             {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}
