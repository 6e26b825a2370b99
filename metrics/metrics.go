package metrics

/*
Labels and so on for metrics used in imagevault.
*/

const (
	LabelMethod  = "method"
	LabelSuccess = "success"

	// Labels for generation metrics
	LabelAction = "action"
)
