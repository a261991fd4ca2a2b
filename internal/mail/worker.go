package mail

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/metrics"
)

// sendTimeout bounds a single queued delivery.
const sendTimeout = 30 * time.Second

// Job is a queued message plus the label it is counted under.
type Job struct {
	Kind    string
	Message domain.Message
}

// Worker buffers messages and delivers them from a single goroutine.
// Deliveries are attempted once; failures are logged.
type Worker struct {
	mailer domain.Mailer
	log    *logrus.Logger
	jobs   chan *Job
}

// NewWorker creates a Worker with the given queue capacity.
func NewWorker(mailer domain.Mailer, log *logrus.Logger, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Worker{
		mailer: mailer,
		log:    log,
		jobs:   make(chan *Job, queueSize),
	}
}

// Enqueue adds a job without blocking. It reports false when the queue is full
// and the job was dropped.
func (w *Worker) Enqueue(job *Job) bool {
	select {
	case w.jobs <- job:
		metrics.MailQueueDepth.Set(float64(len(w.jobs)))
		return true
	default:
		w.log.WithFields(logrus.Fields{
			"kind": job.Kind,
			"to":   job.Message.To,
		}).Warn("mail queue full, dropping message")
		metrics.MailSent.WithLabelValues(job.Kind, "dropped").Inc()
		return false
	}
}

// Run delivers jobs until the context is cancelled, then drains remaining jobs.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.process(job)
		default:
			return
		}
	}
}

func (w *Worker) process(job *Job) {
	metrics.MailQueueDepth.Set(float64(len(w.jobs)))

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := w.mailer.Send(ctx, job.Message); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"kind": job.Kind,
			"to":   job.Message.To,
		}).Warn("queued mail delivery failed")
		metrics.MailSent.WithLabelValues(job.Kind, "failed").Inc()
		return
	}

	metrics.MailSent.WithLabelValues(job.Kind, "sent").Inc()
}
