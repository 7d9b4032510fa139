package handlers

import (
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/services"
)

type APIHandlers struct {
	Jobs        *JobsHandler
	Documents   *DocumentsHandler
	Emails      *EmailsHandler
	Accounts    *AccountsHandler
	Credentials *CredentialsHandler
}

func InitHandlers(s *services.Services, r *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Jobs:        NewJobsHandler(s.Jobs),
		Documents:   NewDocumentsHandler(r.DocumentRepository, s.Store, s.Preview),
		Emails:      NewEmailsHandler(r.EmailRepository, r.IngestionLogRepository, s.Pipeline),
		Accounts:    NewAccountsHandler(r.AccountRepository, s.Poller, s.Credentials),
		Credentials: NewCredentialsHandler(s.Credentials),
	}
}
