// Package errors provides coded, categorized errors for the sprout gateway.
//
// Every failure the gateway can observe falls into one category, and each
// category degrades a single path while leaving the rest of the process
// running:
//   - framing: unbalanced, truncated or oversized input from the device
//   - validation: a complete frame whose shape is not a canonical reading
//   - device: open or read failures on the serial channel
//   - subscriber: send failures on one subscriber's transport
//   - submission: malformed discrete submissions
//   - config: invalid configuration values
//   - cli: command-line usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "E101") that maps to a short message,
// a detailed explanation and a category.
//
// # Usage
//
//	err := errors.New("E103").
//	    WithDetail(`key "temp" is not numeric`).
//	    Wrap(reading.ErrRejected)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E103: Reading field is not numeric
//	//
//	//   key "temp" is not numeric
package errors
