// Package device provides the HTTP client for my-PV AC-Thor devices.
//
// The device serves three JSON resources on its local web server and accepts
// commands as query parameters on the data endpoint:
//
//	GET /data.jsn              live measurements
//	GET /mypv_dev.jsn          identity (model, serial number)
//	GET /setup.jsn             configuration
//	GET /data.jsn?bststrt=1    start (1) or stop (0) a hot-water boost
//	GET /data.jsn?devmode=1    switch the device mode on (1) or off (0)
//
// There is no authentication and no retry inside the client; the poll
// coordinator retries on its next cycle.
//
// # Usage Example
//
//	client := device.NewClient("192.168.1.50")
//	data, err := client.Fetch(ctx, snapshot.KindData)
//	if err != nil {
//	    fmt.Println(device.ShortMessage(err))
//	    return err
//	}
//	watts, _ := data.Float("power1")
//
// # Error Handling
//
// Every failure is an *Error carrying one of four kinds: Unreachable,
// Timeout, BadStatus (with the status code) or MalformedBody. Match them with
// errors.Is against ErrUnreachable, ErrTimeout, ErrBadStatus and
// ErrMalformedBody; a timeout also matches ErrUnreachable.
//
// # Thread Safety
//
// A Client is safe for concurrent use. Each call carries its own timeout via
// the request context, so reads and writes may use different limits.
package device
