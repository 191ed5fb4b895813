// Package ngp is the public façade of a reliable-datagram transport for
// resource-constrained multi-node environments: an 8-bit node address space,
// 6-bit ports, a fixed-size packet buffer pool, a stop-and-wait stream
// engine with a three-way handshake, connectionless datagrams, a static
// routing table, and fragmentation for stream payloads larger than one
// packet.
//
// Engine ties the wire, pool, link, route, socket and sfp packages
// together behind one lifecycle: construct with New, register link
// interfaces and a routing table, then open sockets.
package ngp
