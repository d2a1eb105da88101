package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldCategoryID    = "category_id"
	FieldSource        = "category_source"
	FieldConfidence    = "confidence"
	FieldAccount       = "counterparty_account"
	FieldMerchantKey   = "merchant_key"
	FieldAmount        = "amount"
	FieldBatchSize     = "batch_size"
	FieldCategorized   = "categorized"
	FieldErrors        = "errors"
	FieldRemaining     = "remaining"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentStorage    = "storage"
	ComponentCategorize = "categorize"
	ComponentDetect     = "detect"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentAudit      = "audit"
)

// Operations defines standard operation names
const (
	OpCreate     = "create"
	OpRead       = "read"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpCategorize = "categorize"
	OpPromote    = "promote"
	OpDetect     = "detect"
	OpImport     = "import"
	OpExport     = "export"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
