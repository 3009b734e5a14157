package runner

// Outcome is the classification of one request attempt.
type Outcome struct {
	Success bool
	// StatusCode is the histogram bucket, 0 when the attempt has none.
	StatusCode int
}

// Classify applies the success policy: only an exact 200 succeeds. Every
// other status fails but is still bucketed by its code. A transport failure
// fails without a bucket.
func Classify(statusCode int, transportErr bool) Outcome {
	if transportErr || statusCode == 0 {
		return Outcome{}
	}
	return Outcome{
		Success:    statusCode == 200,
		StatusCode: statusCode,
	}
}
