// Package scoring produces the per-category scores that feed the canary
// aggregator.
//
// Scorers are independent and may fail. The Pool runs them with a fixed
// concurrency bound and a per-task timeout, returning one explicit Result per
// scorer in input order. A failure never cancels the other scorers; Collect
// simply leaves the failed category out and the aggregator renormalises over
// the categories that are present.
//
// Transient failures are retried by wrapping a scorer with Retry. Errors must
// wrap ErrUnavailable to be retried.
//
//	pool := scoring.NewPool(scoring.PoolConfig{Workers: 4, TaskTimeout: 30 * time.Second})
//	scores, results := pool.Evaluate(ctx, req, []scoring.Scorer{
//	    scoring.HeuristicScorer{},
//	    scoring.Retry(judge, scoring.DefaultRetryConfig()),
//	})
//	rec, err := controller.RecordEvaluation(ctx, req.ReleaseID, req.VersionID, scores)
package scoring
