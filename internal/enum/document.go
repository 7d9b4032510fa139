package enum

type DocumentLabel string

const (
	LabelInvoice   DocumentLabel = "invoice"
	LabelReceipt   DocumentLabel = "receipt"
	LabelContract  DocumentLabel = "contract"
	LabelStatement DocumentLabel = "statement"
	LabelOther     DocumentLabel = "other"
)

var DocumentLabels = []DocumentLabel{LabelInvoice, LabelReceipt, LabelContract, LabelStatement, LabelOther}

func (t DocumentLabel) String() string {
	return string(t)
}

func (t DocumentLabel) IsValid() bool {
	for _, l := range DocumentLabels {
		if l == t {
			return true
		}
	}
	return false
}

// Category groups labels for browsing.
func (t DocumentLabel) Category() DocumentCategory {
	switch t {
	case LabelInvoice, LabelReceipt, LabelStatement:
		return CategoryFinancial
	case LabelContract:
		return CategoryLegal
	default:
		return CategoryGeneral
	}
}

type DocumentCategory string

const (
	CategoryFinancial DocumentCategory = "financial"
	CategoryLegal     DocumentCategory = "legal"
	CategoryGeneral   DocumentCategory = "general"
)

func (t DocumentCategory) String() string {
	return string(t)
}

type DocumentSource string

const (
	SourceAttachment  DocumentSource = "attachment"
	SourceInvoiceLink DocumentSource = "invoice_link"
)

func (t DocumentSource) String() string {
	return string(t)
}

type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusInfo    LogStatus = "info"
	LogStatusWarning LogStatus = "warning"
	LogStatusError   LogStatus = "error"
)

func (t LogStatus) String() string {
	return string(t)
}

// LogAction names the pipeline step an ingestion log entry describes.
type LogAction string

const (
	LogActionFetchEmails      LogAction = "fetch_emails"
	LogActionProcessEmail     LogAction = "process_email"
	LogActionStoreDocument    LogAction = "store_document"
	LogActionDuplicateSkipped LogAction = "duplicate_skipped"
	LogActionFetchLink        LogAction = "fetch_link"
	LogActionExtractText      LogAction = "extract_text"
	LogActionClassify         LogAction = "classify"
	LogActionVerifyIntegrity  LogAction = "verify_integrity"
	LogActionPostAction       LogAction = "post_action"
	LogActionRefreshAll       LogAction = "refresh_all"
)

func (t LogAction) String() string {
	return string(t)
}

type ErrorKind string

const (
	ErrorKindNone                      ErrorKind = ""
	ErrorKindFetch                     ErrorKind = "fetch"
	ErrorKindIntegrity                 ErrorKind = "integrity"
	ErrorKindExtraction                ErrorKind = "extraction"
	ErrorKindClassificationUnavailable ErrorKind = "classification_unavailable"
	ErrorKindLockedCredentials         ErrorKind = "locked_credentials"
	ErrorKindDuplicate                 ErrorKind = "duplicate"
	ErrorKindNotFound                  ErrorKind = "not_found"
	ErrorKindInvalid                   ErrorKind = "invalid"
	ErrorKindInternal                  ErrorKind = "internal"
)

func (t ErrorKind) String() string {
	return string(t)
}
