// Package retry runs provider calls under a bounded exponential backoff.
//
// A Policy describes the budget: how many attempts, how long to wait between
// them, how much jitter to add and how long a single attempt may take. Do runs
// an operation under a Policy. Errors classified as permanent by
// core.IsPermanent end the loop immediately, everything else is retried until
// the budget is spent.
//
// Example:
//
//	attempts, err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
//	    return generate(ctx)
//	})
package retry
