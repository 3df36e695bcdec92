package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Framing Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryFraming,
		Message:  "Frame exceeds maximum size",
		Detail:   "The device produced an opening delimiter without a matching close before the size limit. The partial frame was discarded.",
	},
	"E002": {
		Category: CategoryFraming,
		Message:  "Frame truncated",
		Detail:   "The stream closed while a frame was being accumulated. The partial frame was discarded.",
	},

	// ============================================
	// Validation Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryValidation,
		Message:  "Frame is not a JSON object",
	},
	"E101": {
		Category: CategoryValidation,
		Message:  "Missing raw line field",
		Detail:   `The frame must carry a "line" string field.`,
	},
	"E102": {
		Category: CategoryValidation,
		Message:  "Missing reading object",
		Detail:   `The frame must carry a "json" object with the six sensor fields.`,
	},
	"E103": {
		Category: CategoryValidation,
		Message:  "Reading field is not numeric",
	},
	"E104": {
		Category: CategoryValidation,
		Message:  "Reading field missing",
	},
	"E105": {
		Category: CategoryValidation,
		Message:  "Unexpected reading field",
	},
	"E106": {
		Category: CategoryValidation,
		Message:  "Integral reading field has a fractional value",
	},

	// ============================================
	// Device Errors (E200-E219)
	// ============================================

	"E200": {
		Category: CategoryDevice,
		Message:  "Device open failed",
		Detail:   "The serial device could not be opened. It may be absent, busy or inaccessible.",
	},
	"E201": {
		Category: CategoryDevice,
		Message:  "Device disconnected",
		Detail:   "The serial channel closed unexpectedly.",
	},

	// ============================================
	// Subscriber Errors (E300-E319)
	// ============================================

	"E300": {
		Category: CategorySubscriber,
		Message:  "Subscriber send failed",
	},
	"E301": {
		Category: CategorySubscriber,
		Message:  "Subscriber backed up",
		Detail:   "The subscriber's send queue was full; it was removed so it cannot stall other subscribers.",
	},

	// ============================================
	// Submission Errors (E400-E419)
	// ============================================

	"E400": {
		Category: CategorySubmission,
		Message:  "Submission body unreadable",
	},
	"E401": {
		Category: CategorySubmission,
		Message:  "Submission body too large",
	},
	"E402": {
		Category: CategorySubmission,
		Message:  "No reading available",
		Detail:   "No frame has been accepted yet.",
	},

	// ============================================
	// Config Errors (E500-E519)
	// ============================================

	"E500": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
	},
	"E501": {
		Category: CategoryConfig,
		Message:  "Invalid listen port",
		Detail:   "Port must be between 0 and 65535.",
	},
	"E502": {
		Category: CategoryConfig,
		Message:  "Invalid baud rate",
		Detail:   "Baud rate must be a positive integer.",
	},
	"E503": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
	},
	"E504": {
		Category: CategoryConfig,
		Message:  "Invalid environment value",
	},

	// ============================================
	// CLI Errors (E600-E619)
	// ============================================

	"E600": {
		Category: CategoryCLI,
		Message:  "Input not readable",
	},
	"E601": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
