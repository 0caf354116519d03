// Package recorder persists the controller's audit trail without blocking it.
//
// The controller calls the canary.AuditSink methods while holding a release
// lock, so the Recorder only copies the value onto a buffered channel. A single
// background worker writes entries to a storage.Storage in arrival order, each
// with its own write timeout. A full buffer drops the entry and counts it;
// Stats exposes the counters.
//
// # Basic Usage
//
//	rec := recorder.NewRecorder(store, &recorder.Config{
//	    AsyncBuffer:  1000,
//	    WriteTimeout: 5 * time.Second,
//	})
//	defer rec.Close()
//
//	ctrl, err := canary.NewController(canary.Options{Audit: rec})
//
// Close drains everything still queued before returning.
package recorder
