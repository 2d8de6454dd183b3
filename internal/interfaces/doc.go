// Package interfaces lists the seams between the packages of the application.
//
// # Interface Categories
//
// ## Library and search
//
//   - search.Document: a record kept in the inverted index (internal/search/index.go)
//   - metadata.BookProvider: scrapes a book page (internal/metadata/importer.go)
//   - metadata.Matcher: resolves scraped names to library records (internal/metadata/importer.go)
//   - http.Previewer: turns a URL into a prefilled book form (internal/http/import.go)
//   - covers.Getter: downloads remote cover images (internal/covers/store.go)
//
// ## Accounts and mail
//
//   - auth.ActivationSender: queues activation mails (internal/auth/handlers.go)
//   - auth.Auditor: records login and registration events (internal/auth/handlers.go)
//   - mail.Mailer: delivers a message (internal/mail/mail.go)
//   - mail.DeliveryScheduler: defers delivery to the task queue (internal/mail/mail.go)
//
// ## Background work
//
//   - scheduler.Enqueuer: the cron side of the task queue (internal/scheduler/maintenance.go)
//   - tasks.Reindexer, tasks.MailDeliverer, tasks.TokenSweeper, tasks.AuditEventCleaner,
//     tasks.SystemRecorder: what the queue processors call (internal/tasks/)
//
// # Adding a New Maintenance Job
//
//  1. Add a task type and processor in internal/tasks/ and an Enqueuer method on tasks.Client.
//
//  2. Add the job and its schedule to scheduler.Schedules.
//
//  3. Register the queue in entrypoint.go and add a compile-time check to checks.go.
//
// # Compile-Time Interface Checks
//
// Every implementation has a check in checks.go:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
package interfaces
