package responses

// Success wraps every 2xx body.
type Success struct {
	Data any `json:"data"`
}

// Problem is the public shape of a failed request. RetryAfter is set only for
// failures a client may retry, in seconds.
type Problem struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type Failure struct {
	Error Problem `json:"error"`
}
