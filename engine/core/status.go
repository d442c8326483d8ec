package core

// Intent is the Intent Classifier's verdict on a user query.
type Intent string

const (
	// IntentDirect means the query is answerable without tool calls.
	IntentDirect Intent = "direct"
	// IntentToolNeeded means the reactive tool loop must run.
	IntentToolNeeded Intent = "tool_needed"
)

// Valid reports whether i is one of the two known intents.
func (i Intent) Valid() bool {
	return i == IntentDirect || i == IntentToolNeeded
}

func (i Intent) String() string {
	return string(i)
}

// ResultQuality grades what a tool invocation produced. It answers only
// "what happened", never "what to do next"; routing on the answer is the
// Router's job.
type ResultQuality string

const (
	QualitySuccessRich    ResultQuality = "success_rich"
	QualitySuccessPartial ResultQuality = "success_partial"
	QualityNoResults      ResultQuality = "no_results"
	QualityErrorRetryable ResultQuality = "error_retryable"
	QualityErrorFatal     ResultQuality = "error_fatal"
)

// Valid reports whether q is one of the five known grades.
func (q ResultQuality) Valid() bool {
	switch q {
	case QualitySuccessRich, QualitySuccessPartial, QualityNoResults,
		QualityErrorRetryable, QualityErrorFatal:
		return true
	}
	return false
}

func (q ResultQuality) String() string {
	return string(q)
}

// IsError reports whether the grade describes a failed invocation.
func (q ResultQuality) IsError() bool {
	return q == QualityErrorRetryable || q == QualityErrorFatal
}

// QualityValues lists the grades in contract enum order.
func QualityValues() []string {
	return []string{
		string(QualitySuccessRich),
		string(QualitySuccessPartial),
		string(QualityNoResults),
		string(QualityErrorRetryable),
		string(QualityErrorFatal),
	}
}
