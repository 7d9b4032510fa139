package enum

type EmailProvider string

const (
	EmailProviderGmail   EmailProvider = "gmail"
	EmailProviderOutlook EmailProvider = "outlook"
	EmailProviderIMAP    EmailProvider = "imap"
)

func (t EmailProvider) String() string {
	return string(t)
}

func (t EmailProvider) IsValid() bool {
	switch t {
	case EmailProviderGmail, EmailProviderOutlook, EmailProviderIMAP:
		return true
	}
	return false
}

// ProviderSettings are the defaults a provider variant contributes when an
// account leaves the server fields empty.
type ProviderSettings struct {
	Server         string
	Port           int
	UseTLS         bool
	ArchiveFolders []string
}

var providerSettings = map[EmailProvider]ProviderSettings{
	EmailProviderGmail: {
		Server:         "imap.gmail.com",
		Port:           993,
		UseTLS:         true,
		ArchiveFolders: []string{"[Gmail]/All Mail"},
	},
	EmailProviderOutlook: {
		Server:         "outlook.office365.com",
		Port:           993,
		UseTLS:         true,
		ArchiveFolders: []string{"Archive"},
	},
	EmailProviderIMAP: {
		Port:           993,
		UseTLS:         true,
		ArchiveFolders: []string{"Archive", "INBOX.Archive", "[Gmail]/All Mail"},
	},
}

func (t EmailProvider) Settings() ProviderSettings {
	if s, ok := providerSettings[t]; ok {
		return s
	}
	return providerSettings[EmailProviderIMAP]
}

type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusProcessing EmailStatus = "processing"
	EmailStatusCompleted  EmailStatus = "completed"
	EmailStatusError      EmailStatus = "error"
)

func (t EmailStatus) String() string {
	return string(t)
}

func (t EmailStatus) IsValid() bool {
	switch t {
	case EmailStatusPending, EmailStatusProcessing, EmailStatusCompleted, EmailStatusError:
		return true
	}
	return false
}

func (t EmailStatus) IsTerminal() bool {
	return t == EmailStatusCompleted || t == EmailStatusError
}

// EmailClassification is the email-level category, independent of the labels
// assigned to the documents it carries.
type EmailClassification string

const (
	EmailClassInvoice      EmailClassification = "invoice"
	EmailClassNewsletter   EmailClassification = "newsletter"
	EmailClassShipping     EmailClassification = "shipping"
	EmailClassNotification EmailClassification = "notification"
	EmailClassOther        EmailClassification = "other"
)

func (t EmailClassification) String() string {
	return string(t)
}

func (t EmailClassification) IsValid() bool {
	switch t {
	case EmailClassInvoice, EmailClassNewsletter, EmailClassShipping, EmailClassNotification, EmailClassOther:
		return true
	}
	return false
}

type SearchCriteria string

const (
	SearchAll     SearchCriteria = "all"
	SearchUnseen  SearchCriteria = "unseen"
	SearchSeen    SearchCriteria = "seen"
	SearchFlagged SearchCriteria = "flagged"
)

func (t SearchCriteria) String() string {
	return string(t)
}

type PostAction string

const (
	PostActionNone     PostAction = "none"
	PostActionMarkRead PostAction = "mark_read"
	PostActionMove     PostAction = "move"
	PostActionArchive  PostAction = "archive"
	PostActionDelete   PostAction = "delete"
)

func (t PostAction) String() string {
	return string(t)
}

func (t PostAction) IsValid() bool {
	switch t {
	case PostActionNone, PostActionMarkRead, PostActionMove, PostActionArchive, PostActionDelete:
		return true
	}
	return false
}

type AuthMethod string

const (
	AuthMethodAppPassword AuthMethod = "app_password"
	AuthMethodOAuth2      AuthMethod = "oauth2"
)
