// Package discovery locates my-PV devices on the local network.
//
// Two methods are provided:
//  1. An mDNS browse for "_http._tcp" services, each answer probed on
//     /mypv_dev.jsn to confirm it is a my-PV device
//  2. A subnet scan probing x.y.z.1 through x.y.z.254 in parallel
//
// A host counts as a device when its info endpoint answers with a
// "device" field. Probes use device.IdentifyTimeout unless overridden.
//
// # Usage Example
//
//	found, err := discovery.ScanSubnet(ctx, "192.168.1", discovery.ScanOptions{
//	    Exclude: registry.Hosts(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range found {
//	    fmt.Println(c)
//	}
//
// # Network Requirements
//
// - mDNS requires multicast support and UDP port 5353
// - Devices must be on the same local network segment
package discovery
