package queue

import (
	"context"
	"fmt"
	"time"
)

// Claim takes the orchestration lease for owner. An expired lease is taken
// over; a live lease held by someone else yields ErrLeaseHeld.
func (j *Job) Claim(owner string, ttl time.Duration, now time.Time) error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	if j.Lease != nil && j.Lease.Owner != owner && !j.leaseExpired(now) {
		return fmt.Errorf("job %s owned by %s until %s: %w", j.ID, j.Lease.Owner, j.Lease.ExpiresAt.Format(time.RFC3339), ErrLeaseHeld)
	}
	j.Lease = &Lease{Owner: owner, ExpiresAt: normalizeTime(now.Add(ttl))}
	return nil
}

// Renew extends the lease held by owner.
func (j *Job) Renew(owner string, ttl time.Duration, now time.Time) error {
	if err := j.checkOwner(owner); err != nil {
		return err
	}
	j.Lease.ExpiresAt = normalizeTime(now.Add(ttl))
	return nil
}

// Release drops the lease if owner holds it.
func (j *Job) Release(owner string) {
	if j.Lease != nil && j.Lease.Owner == owner {
		j.Lease = nil
	}
}

func (j *Job) checkOwner(owner string) error {
	if j.Lease == nil || j.Lease.Owner != owner {
		return fmt.Errorf("job %s: %w", j.ID, ErrLeaseLost)
	}
	return nil
}

// UpdateOwned runs mutate only while owner still holds the job lease.
func UpdateOwned(ctx context.Context, store Store, id, owner string, mutate func(*Job) error) (*Job, error) {
	return store.Update(ctx, id, func(job *Job) error {
		if err := job.checkOwner(owner); err != nil {
			return err
		}
		return mutate(job)
	})
}

// Claimable reports whether a run could take the job now: it is not terminal
// and no live lease exists.
func Claimable(job *Job, now time.Time) bool {
	return job != nil && !job.Status.IsTerminal() && job.leaseExpired(now)
}
