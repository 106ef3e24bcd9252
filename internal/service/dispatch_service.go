package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/jobs"
	applog "github.com/noah-isme/lms-api/pkg/logger"
	"github.com/noah-isme/lms-api/pkg/mail"
)

// Dispatch job names. Each one is also the suffix of its Redis lock.
const (
	JobProjectNotifications    = "project_notifications"
	JobMailQueue               = "mail_queue"
	JobAssignmentNotifications = "assignment_notifications"
	JobProjectReminders        = "project_reminders"
	JobNotificationCleanup     = "notification_cleanup"
)

const (
	resultSent    = "sent"
	resultSkipped = "skipped"
	resultDropped = "dropped"
	resultFailed  = "failed"

	maxMailAttempts = 5
	deadlineLayout  = "02 Jan 2006 15:04 MST"
	reportLayout    = "02 Jan 2006"
)

type assignmentOutbox interface {
	PendingAssignmentEvents(ctx context.Context, limit int) ([]models.AssignmentEvent, error)
	PendingCourseNewsEvents(ctx context.Context, limit int) ([]models.CourseNewsEvent, error)
	MarkAssignmentNotified(ctx context.Context, ids []string) error
	MarkCourseNewsNotified(ctx context.Context, ids []string) error
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

type atomOutbox interface {
	PendingProjectReminders(ctx context.Context, limit int) ([]models.ProjectReminder, error)
	MarkEmailed(ctx context.Context, ids []string) error
	MarkDeleted(ctx context.Context, ids []string) error
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

type mailOutbox interface {
	Pending(ctx context.Context, limit int) ([]models.GenericMail, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, reason string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type reminderPlanner interface {
	ProjectReminders(ctx context.Context, now time.Time) (int, error)
}

type emailRenderer interface {
	Has(name string) bool
	Render(name string, to mail.Address, data map[string]interface{}) (mail.Message, error)
}

type jobLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// DispatchConfig tunes the delivery passes.
type DispatchConfig struct {
	BatchSize    int
	SendCooldown time.Duration
	LockTTL      time.Duration
	// Location is used for reminder days, semester boundaries and for
	// recipients without a valid time zone.
	Location         *time.Location
	AutumnStartMonth time.Month
	SpringStartMonth time.Month
}

// DispatchSchedules holds the cron spec of every job.
type DispatchSchedules struct {
	Assignments string
	Projects    string
	MailQueue   string
	Reminders   string
	Cleanup     string
}

// DispatchService renders pending notifications and emails them. Site
// bound messages go through the SMTP identity of the recipient's site,
// queued generic mail through the fixed provider.
type DispatchService struct {
	assignments assignmentOutbox
	atoms       atomOutbox
	queue       mailOutbox
	reminders   reminderPlanner
	sites       SiteResolver
	renderer    emailRenderer
	smtp        mail.SiteSender
	provider    mail.Sender
	locks       jobLocker
	limiter     *rate.Limiter
	metrics     *MetricsService
	cfg         DispatchConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewDispatchService constructs DispatchService.
func NewDispatchService(assignments assignmentOutbox, atoms atomOutbox, queue mailOutbox, reminders reminderPlanner, sites SiteResolver, renderer emailRenderer, smtp mail.SiteSender, provider mail.Sender, locks jobLocker, metrics *MetricsService, cfg DispatchConfig, logger *zap.Logger) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AutumnStartMonth == 0 {
		cfg.AutumnStartMonth = time.September
	}
	if cfg.SpringStartMonth == 0 {
		cfg.SpringStartMonth = time.January
	}
	limit := rate.Inf
	if cfg.SendCooldown > 0 {
		limit = rate.Every(cfg.SendCooldown)
	}
	return &DispatchService{
		assignments: assignments,
		atoms:       atoms,
		queue:       queue,
		reminders:   reminders,
		sites:       sites,
		renderer:    renderer,
		smtp:        smtp,
		provider:    provider,
		locks:       locks,
		limiter:     rate.NewLimiter(limit, 1),
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Tasks returns the scheduler tasks of every dispatch job.
func (s *DispatchService) Tasks(schedules DispatchSchedules) []jobs.Task {
	return []jobs.Task{
		{Name: JobAssignmentNotifications, Spec: schedules.Assignments, Run: s.RunAssignmentNotifications},
		{Name: JobProjectNotifications, Spec: schedules.Projects, Run: s.RunProjectNotifications},
		{Name: JobMailQueue, Spec: schedules.MailQueue, Run: s.RunMailQueue},
		{Name: JobProjectReminders, Spec: schedules.Reminders, Run: s.RunProjectReminders},
		{Name: JobNotificationCleanup, Spec: schedules.Cleanup, Run: s.RunCleanup},
	}
}

type passStats map[string]int

func (p passStats) add(result string) { p[result]++ }

// RunAssignmentNotifications emails pending assignment and course news
// notifications. Rows whose send failed stay pending for the next pass.
func (s *DispatchService) RunAssignmentNotifications(ctx context.Context) error {
	return s.withLock(ctx, JobAssignmentNotifications, func(ctx context.Context) error {
		stats := passStats{}
		events, err := s.assignments.PendingAssignmentEvents(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load assignment notifications: %w", err)
		}
		for i := range events {
			event := &events[i]
			result := s.deliverToSite(ctx, JobAssignmentNotifications, event)
			if result != resultFailed {
				if err := s.assignments.MarkAssignmentNotified(ctx, []string{event.ID}); err != nil {
					return fmt.Errorf("mark assignment notification %s: %w", event.ID, err)
				}
			}
			stats.add(result)
		}

		news, err := s.assignments.PendingCourseNewsEvents(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load course news notifications: %w", err)
		}
		for i := range news {
			event := &news[i]
			result := s.deliverToSite(ctx, JobAssignmentNotifications, event)
			if result != resultFailed {
				if err := s.assignments.MarkCourseNewsNotified(ctx, []string{event.ID}); err != nil {
					return fmt.Errorf("mark course news notification %s: %w", event.ID, err)
				}
			}
			stats.add(result)
		}
		s.logger.Sugar().Infow("assignment notifications dispatched", "sent", stats[resultSent], "skipped", stats[resultSkipped], "dropped", stats[resultDropped], "failed", stats[resultFailed])
		return nil
	})
}

// RunProjectNotifications emails pending project notifications. A
// notification without an email template is marked deleted.
func (s *DispatchService) RunProjectNotifications(ctx context.Context) error {
	return s.withLock(ctx, JobProjectNotifications, func(ctx context.Context) error {
		stats := passStats{}
		reminders, err := s.atoms.PendingProjectReminders(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load project notifications: %w", err)
		}
		for i := range reminders {
			reminder := &reminders[i]
			if name := reminder.Template(); name == "" || !s.renderer.Has(name) {
				if err := s.atoms.MarkDeleted(ctx, []string{reminder.ID}); err != nil {
					return fmt.Errorf("mark project notification %s deleted: %w", reminder.ID, err)
				}
				s.metrics.NotificationSent(JobProjectNotifications, resultDropped)
				stats.add(resultDropped)
				continue
			}
			result := s.deliverToSite(ctx, JobProjectNotifications, reminder)
			if result != resultFailed {
				if err := s.atoms.MarkEmailed(ctx, []string{reminder.ID}); err != nil {
					return fmt.Errorf("mark project notification %s: %w", reminder.ID, err)
				}
			}
			stats.add(result)
		}
		s.logger.Sugar().Infow("project notifications dispatched", "sent", stats[resultSent], "skipped", stats[resultSkipped], "dropped", stats[resultDropped], "failed", stats[resultFailed])
		return nil
	})
}

// RunMailQueue sends queued generic mail through the fixed provider. A
// message is given up after maxMailAttempts failed sends.
func (s *DispatchService) RunMailQueue(ctx context.Context) error {
	return s.withLock(ctx, JobMailQueue, func(ctx context.Context) error {
		stats := passStats{}
		pending, err := s.queue.Pending(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load mail queue: %w", err)
		}
		for i := range pending {
			item := &pending[i]
			result, sendErr := s.deliverGeneric(ctx, item)
			s.metrics.NotificationSent(JobMailQueue, result)
			stats.add(result)

			switch result {
			case resultSent:
				err = s.queue.MarkSent(ctx, item.ID, s.now().UTC())
			case resultSkipped:
				err = s.queue.MarkFailed(ctx, item.ID, "recipient email suspended")
			case resultDropped:
				err = s.queue.MarkFailed(ctx, item.ID, sendErr.Error())
			default:
				if item.Attempts+1 >= maxMailAttempts {
					err = s.queue.MarkFailed(ctx, item.ID, sendErr.Error())
				} else {
					err = s.queue.RecordFailure(ctx, item.ID, sendErr.Error())
				}
			}
			if err != nil {
				return fmt.Errorf("update queued email %s: %w", item.ID, err)
			}
		}
		s.logger.Sugar().Infow("mail queue dispatched", "sent", stats[resultSent], "skipped", stats[resultSkipped], "dropped", stats[resultDropped], "failed", stats[resultFailed])
		return nil
	})
}

// RunProjectReminders creates today's project period reminders.
func (s *DispatchService) RunProjectReminders(ctx context.Context) error {
	return s.withLock(ctx, JobProjectReminders, func(ctx context.Context) error {
		created, err := s.reminders.ProjectReminders(ctx, s.now().In(s.cfg.Location))
		if err != nil {
			return err
		}
		s.logger.Sugar().Infow("project reminders created", "count", created)
		return nil
	})
}

// RunCleanup deletes read notifications created before the start of the
// previous semester.
func (s *DispatchService) RunCleanup(ctx context.Context) error {
	return s.withLock(ctx, JobNotificationCleanup, func(ctx context.Context) error {
		cutoff := previousSemesterStart(s.now().In(s.cfg.Location), s.cfg.AutumnStartMonth, s.cfg.SpringStartMonth)
		course, err := s.assignments.DeleteReadBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup course notifications: %w", err)
		}
		atoms, err := s.atoms.DeleteReadBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup project notifications: %w", err)
		}
		s.logger.Sugar().Infow("read notifications deleted", "before", cutoff, "course", course, "project", atoms)
		return nil
	})
}

func (s *DispatchService) withLock(ctx context.Context, job string, fn func(context.Context) error) error {
	jobLog := applog.ForJob(s.logger, job)
	release, err := s.locks.Acquire(ctx, "notify-lock:"+job, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, appErrors.ErrLockNotAcquired) {
			jobLog.Debug("pass skipped, lock held elsewhere")
			return nil
		}
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			jobLog.Warn("failed to release dispatch lock", zap.Error(err))
		}
	}()

	start := time.Now()
	err = fn(ctx)
	s.metrics.ObserveDispatchPass(job, time.Since(start))
	return err
}

// deliverToSite sends d with the SMTP identity of its site key. The result
// is resultFailed only when a later pass may succeed.
func (s *DispatchService) deliverToSite(ctx context.Context, job string, d models.Deliverable) string {
	result := s.sendToSite(ctx, d)
	s.metrics.NotificationSent(job, result)
	return result
}

func (s *DispatchService) sendToSite(ctx context.Context, d models.Deliverable) string {
	recipient := d.Recipient()
	if recipient.EmailSuspended || recipient.Email == "" {
		return resultSkipped
	}
	logger := s.logger.With(zap.String("kind", string(d.Kind())), zap.String("id", d.DeliverableID()), zap.String("site_id", d.SiteKey()))

	site, err := s.sites.Resolve(ctx, d.SiteKey())
	if err != nil {
		logger.Error("failed to resolve site configuration", zap.Error(err))
		return resultFailed
	}
	data, err := s.renderContext(d, site.Domain)
	if err != nil {
		logger.Error("failed to build email context", zap.Error(err))
		return resultDropped
	}
	msg, err := s.renderer.Render(d.Template(), mail.Address{Name: recipient.FullName, Email: recipient.Email}, data)
	if err != nil {
		logger.Error("failed to render email", zap.Error(err))
		return resultDropped
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return resultFailed
	}
	if err := s.smtp.SendVia(ctx, siteCredentials(site), msg); err != nil {
		logger.Warn("failed to send email", zap.String("to", recipient.Email), zap.Error(err))
		return resultFailed
	}
	return resultSent
}

func (s *DispatchService) deliverGeneric(ctx context.Context, m *models.GenericMail) (string, error) {
	recipient := m.Recipient()
	if recipient.EmailSuspended {
		return resultSkipped, nil
	}
	data, err := s.renderContext(m, "")
	if err != nil {
		return resultDropped, err
	}
	msg, err := s.renderer.Render(m.Template(), mail.Address{Name: recipient.FullName, Email: recipient.Email}, data)
	if err != nil {
		return resultDropped, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return resultFailed, err
	}
	if err := s.provider.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send queued email", zap.String("id", m.ID), zap.String("to", recipient.Email), zap.Error(err))
		return resultFailed, err
	}
	return resultSent, nil
}

// renderContext builds the template data of a deliverable at send time.
func (s *DispatchService) renderContext(d models.Deliverable, domain string) (map[string]interface{}, error) {
	base := "https://" + domain
	switch v := d.(type) {
	case *models.AssignmentEvent:
		link := fmt.Sprintf("%s/teaching/assignments/%s/students/%s/", base, v.AssignmentID, v.StudentID)
		if v.UserID == v.StudentID {
			link = fmt.Sprintf("%s/learning/assignments/%s/", base, v.AssignmentID)
		}
		return map[string]interface{}{
			"link":            link,
			"course_name":     v.CourseName,
			"assignment_name": v.AssignmentTitle,
			"assignment_text": v.AssignmentText,
			"student_name":    v.StudentName,
			"deadline_at":     v.DeadlineAt.In(s.location(v.RecipientTimeZone)).Format(deadlineLayout),
		}, nil
	case *models.CourseNewsEvent:
		return map[string]interface{}{
			"link":             fmt.Sprintf("%s/courses/%s/news/", base, v.CourseID),
			"course_name":      v.CourseName,
			"course_news_name": v.NewsTitle,
			"course_news_text": v.NewsText,
		}, nil
	case *models.ProjectReminder:
		link := base + "/projects/"
		if v.ProjectID != nil {
			link = fmt.Sprintf("%s/projects/%s/", base, *v.ProjectID)
		}
		if v.ReportID != nil {
			link = fmt.Sprintf("%s/projects/reports/%s/", base, *v.ReportID)
		}
		return map[string]interface{}{
			"link":             link,
			"project_name":     v.ProjectName,
			"report_starts_at": formatDay(v.ReportStartsAt, s.cfg.Location),
			"report_ends_at":   formatDay(v.ReportEndsAt, s.cfg.Location),
		}, nil
	case *models.GenericMail:
		data := map[string]interface{}{}
		if len(v.Context) > 0 {
			if err := json.Unmarshal(v.Context, &data); err != nil {
				return nil, fmt.Errorf("decode email context: %w", err)
			}
		}
		return data, nil
	}
	return nil, fmt.Errorf("unsupported deliverable %s", d.Kind())
}

func (s *DispatchService) location(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return s.cfg.Location
}

func formatDay(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(reportLayout)
}

func siteCredentials(site *models.SiteConfiguration) mail.SMTPCredentials {
	return mail.SMTPCredentials{
		Host:     site.SMTPHost,
		Port:     site.SMTPPort,
		Username: site.SMTPUsername,
		Password: site.SMTPPassword,
		UseTLS:   site.UseTLS,
		UseSSL:   site.UseSSL,
		From:     mail.Address{Name: site.FromName, Email: site.FromEmail},
	}
}

// previousSemesterStart returns the start of the semester preceding the one
// now falls in. Semesters start on the first day of the given months.
func previousSemesterStart(now time.Time, autumn, spring time.Month) time.Time {
	var starts []time.Time
	for year := now.Year() - 2; year <= now.Year(); year++ {
		starts = append(starts,
			time.Date(year, autumn, 1, 0, 0, 0, 0, now.Location()),
			time.Date(year, spring, 1, 0, 0, 0, 0, now.Location()),
		)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	current := 0
	for i, start := range starts {
		if !start.After(now) {
			current = i
		}
	}
	if current == 0 {
		return starts[0]
	}
	return starts[current-1]
}
