package interfaces

// This file contains compile-time interface implementation checks.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/http"
	"github.com/jollyrodger/pika/internal/mail"
	"github.com/jollyrodger/pika/internal/metadata"
	"github.com/jollyrodger/pika/internal/scheduler"
	"github.com/jollyrodger/pika/internal/search"
	"github.com/jollyrodger/pika/internal/tasks"
)

// =============================================================================
// Library and search
// =============================================================================

var _ search.Document = entities.Author{}
var _ search.Document = entities.Book{}
var _ search.Document = entities.Series{}

var _ metadata.BookProvider = (*metadata.Client)(nil)
var _ metadata.Matcher = (*metadata.IndexMatcher)(nil)
var _ http.Previewer = (*metadata.Importer)(nil)
var _ covers.Getter = (*metadata.Client)(nil)

// =============================================================================
// Accounts and mail
// =============================================================================

var _ auth.ActivationSender = (*mail.Service)(nil)
var _ auth.Auditor = (*audit.Service)(nil)
var _ mail.Mailer = mail.LogMailer{}
var _ mail.DeliveryScheduler = (*tasks.Client)(nil)

// =============================================================================
// Background work
// =============================================================================

var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ tasks.Reindexer = (*search.Index)(nil)
var _ tasks.MailDeliverer = (*mail.Service)(nil)
var _ tasks.TokenSweeper = (*users.Repository)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.SystemRecorder = (*audit.Service)(nil)
