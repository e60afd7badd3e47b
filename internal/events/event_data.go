package events

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID    string `json:"run_id"`
	AsOfDate string `json:"as_of_date"`
	Universe int    `json:"universe"`
}

// InstrumentDroppedData contains data for InstrumentDropped events
type InstrumentDroppedData struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID       string  `json:"run_id"`
	AsOfDate    string  `json:"as_of_date"`
	Instruments int     `json:"instruments"`
	Objective   float64 `json:"objective"`
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID    string `json:"run_id"`
	AsOfDate string `json:"as_of_date"`
	Error    string `json:"error"`
}

// BackfillCompletedData contains data for BackfillCompleted events
type BackfillCompletedData struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}
