package mysql

import (
	"context"
	"database/sql"
	"time"

	"auction-worker/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLJobJournal struct {
	db *sql.DB
}

func NewMySQLJobJournal(db *sql.DB) *MySQLJobJournal {
	return &MySQLJobJournal{db: db}
}

// CreateJob records a job. A worker restarted for the same auction registers
// the same job ids again, so existing rows are reset to the new plan.
func (r *MySQLJobJournal) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	query := `
        INSERT INTO scheduled_jobs (id, auction_id, job_type, run_at, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE run_at = VALUES(run_at), status = VALUES(status), updated_at = VALUES(updated_at)
    `
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.AuctionID, string(job.JobType),
		job.RunAt, string(job.Status), job.CreatedAt, job.CreatedAt)
	return err
}

func (r *MySQLJobJournal) GetJobs(ctx context.Context, auctionID string) ([]*domain.ScheduledJob, error) {
	query := `
        SELECT id, auction_id, job_type, run_at, status, created_at
        FROM scheduled_jobs
        WHERE auction_id = ?
        ORDER BY run_at ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		var job domain.ScheduledJob
		var jobType, status string

		err := rows.Scan(&job.ID, &job.AuctionID, &jobType,
			&job.RunAt, &status, &job.CreatedAt)
		if err != nil {
			return nil, err
		}

		job.JobType = domain.JobType(jobType)
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

func (r *MySQLJobJournal) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	query := `UPDATE scheduled_jobs SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, string(status), time.Now(), jobID)
	return err
}

func (r *MySQLJobJournal) CancelJobsForAuction(ctx context.Context, auctionID string) error {
	query := `UPDATE scheduled_jobs SET status = 'cancelled', updated_at = ? WHERE auction_id = ? AND status = 'pending'`
	_, err := r.db.ExecContext(ctx, query, time.Now(), auctionID)
	return err
}
