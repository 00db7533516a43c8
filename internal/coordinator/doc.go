// Package coordinator schedules the polling of one my-PV device.
//
// Each cycle always fetches the data resource, fetches info until it has
// succeeded once, and fetches setup when it has never been fetched or is
// older than the setup refresh interval. The results are applied to the
// snapshot cache independently and published in one atomic swap.
//
// A failed data fetch marks the cycle as failed: subscribers receive an
// *UpdateFailedError while the previous snapshot stays readable. Info and
// setup failures are logged and retried on the next cycle.
//
// # Forced Refresh
//
// After a write, callers request an out-of-cycle, data-only refresh with
// RequestRefresh (fire and forget) or RefreshAndWait. Requests never overlap
// an in-flight fetch and collapse into at most one pending refresh; the
// interval ticker is not reset.
//
// # Lifecycle
//
//	coord, err := coordinator.New(coordinator.Config{Host: "192.168.1.50"}, client)
//	if err != nil {
//	    return err
//	}
//	stop := coord.OnUpdate(func(u coordinator.Update) { ... })
//	defer stop()
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Shutdown(context.Background())
//
// Shutdown cancels any in-flight request through its context and discards
// the interrupted cycle.
package coordinator
