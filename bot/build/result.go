package build

// TaskResults is the value returned over the workflow boundary. Failures are
// reported through it rather than raised past the workflow.
type TaskResults struct {
	Success bool                   `json:"success"`
	Details map[string]interface{} `json:"details"`
}

func Success() TaskResults {
	return TaskResults{Success: true, Details: map[string]interface{}{}}
}

func Failure(msg string) TaskResults {
	return TaskResults{Success: false, Details: map[string]interface{}{"msg": msg}}
}

func FailureWithError(msg string, err error) TaskResults {
	return TaskResults{Success: false, Details: map[string]interface{}{"msg": msg, "error": err.Error()}}
}
